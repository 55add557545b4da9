package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix is the prefix for all API keys
	KeyPrefix = "iv_key_"
	// KeyLength is the length of the random part of the key
	KeyLength = 32
)

// GenerateAPIKey generates a new API key.
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(bytes), nil
}

// HashAPIKey hashes an API key for configuration. Only hashes are configured.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// KeySet holds the SHA-256 hashes of the accepted API keys
type KeySet map[string]struct{}

// NewKeySet builds a set from hex hashes; blanks are ignored
func NewKeySet(hashes []string) KeySet {
	s := make(KeySet, len(hashes))
	for _, h := range hashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			s[h] = struct{}{}
		}
	}
	return s
}

// Valid reports whether key hashes to a member of the set
func (s KeySet) Valid(key string) bool {
	_, ok := s[HashAPIKey(key)]
	return ok
}

// KeyID is the short, loggable form of a key's hash
func KeyID(key string) string {
	return HashAPIKey(key)[:8]
}
