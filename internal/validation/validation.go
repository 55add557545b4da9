// Package validation provides input validation for verification suites.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Chain names: lowercase alphanumeric with hyphens, 2-64 chars
var chainNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}[a-z0-9]$`)

// Contract names follow Solidity identifiers
var contractNameRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidateChainName validates a chain name such as "linea-mainnet"
func ValidateChainName(name string) error {
	if len(name) < 2 {
		return errors.New("chain name too short (min 2 chars)")
	}
	if len(name) > 64 {
		return errors.New("chain name too long (max 64 chars)")
	}
	if !chainNameRegex.MatchString(name) {
		return errors.New("invalid chain name: must be lowercase alphanumeric with hyphens, starting with a letter")
	}
	if strings.Contains(name, "--") {
		return errors.New("invalid characters in chain name")
	}
	return nil
}

// ValidateContractName validates a contract name
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("contract name too long (max 128 chars)")
	}
	if !contractNameRegex.MatchString(name) {
		return errors.New("invalid contract name: must be a Solidity identifier")
	}
	return nil
}

// ValidateVersion validates a semantic version string. Major-only and
// major.minor forms ("5", "4.9") are accepted.
func ValidateVersion(v string) error {
	normalized := NormalizeVersion(v)
	if normalized == "" {
		return errors.New("version cannot be empty")
	}

	// semver library expects version to start with 'v'
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid semver version: must be in format X, X.Y or X.Y.Z")
	}
	return nil
}

// NormalizeVersion normalizes a version string (strips leading 'v')
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	// Check hex characters
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID uint64) error {
	if chainID == 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ValidateRPCURL validates an RPC endpoint
func ValidateRPCURL(url string) error {
	switch {
	case url == "":
		return errors.New("RPC URL cannot be empty")
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"),
		strings.HasPrefix(url, "ws://"), strings.HasPrefix(url, "wss://"):
		return nil
	}
	return errors.New("invalid RPC URL: must start with http(s):// or ws(s)://")
}
