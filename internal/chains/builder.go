package chains

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrArtifactNotFound is returned when a builder cannot locate a contract's artifact
var ErrArtifactNotFound = errors.New("artifact not found")

// Builder locates build artifacts produced by a specific toolchain
type Builder interface {
	Name() string        // "foundry", "hardhat"
	DisplayName() string // "Foundry", "Hardhat"
	ConfigFile() string  // "foundry.toml", "hardhat.config.ts"

	// Detect reports whether dir is a project of this toolchain
	Detect(dir string) (bool, error)
	// Discover lists artifact files under dir
	Discover(dir string, opts DiscoverOptions) ([]string, error)
	// Resolve returns the artifact path for a contract name
	Resolve(dir, contractName string) (string, error)
}

// DiscoverOptions configures artifact discovery
type DiscoverOptions struct {
	// Contracts to include (empty = all)
	Contracts []string
	// Patterns to exclude (e.g., "Test*", "Mock*")
	Exclude []string
}

// Selected reports whether a contract passes the include list and exclude
// patterns. Exclude patterns match as prefix, suffix or glob.
func Selected(contractName string, opts DiscoverOptions) bool {
	if len(opts.Contracts) > 0 {
		included := false
		for _, c := range opts.Contracts {
			if c == contractName {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range opts.Exclude {
		if strings.HasSuffix(contractName, pattern) || strings.HasPrefix(contractName, pattern) {
			return false
		}
		if matched, _ := filepath.Match(pattern, contractName); matched {
			return false
		}
	}
	return true
}
