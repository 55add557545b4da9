// Package hardhat locates Hardhat build artifacts.
package hardhat

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/integrity-verifier/internal/chains"
)

// configFiles are the Hardhat config names checked by Detect, in order
var configFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs", "hardhat.config.mjs"}

// Builder implements chains.Builder for Hardhat projects
type Builder struct{}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// ConfigFile returns the primary config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// Detect checks if a directory is a Hardhat project
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// Discover finds artifacts in artifacts/contracts/**/{Source}.sol/{Contract}.json.
// Debug files (*.dbg.json) are skipped.
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]string, error) {
	root := filepath.Join(dir, "artifacts", "contracts")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, fmt.Errorf("artifacts directory not found - run 'npx hardhat compile' first")
	}

	var artifacts []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".dbg.json") {
			return nil
		}
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}
		if chains.Selected(strings.TrimSuffix(name, ".json"), opts) {
			artifacts = append(artifacts, path)
		}
		return nil
	})

	sort.Strings(artifacts)
	return artifacts, err
}

// Resolve walks artifacts/contracts for {Name}.json inside a *.sol directory
func (b *Builder) Resolve(dir, contractName string) (string, error) {
	paths, err := b.Discover(dir, chains.DiscoverOptions{Contracts: []string{contractName}})
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, filepath.Join(dir, "artifacts"))
	}
	return paths[0], nil
}
