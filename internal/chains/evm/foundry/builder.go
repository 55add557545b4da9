// Package foundry locates Foundry build artifacts.
package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/integrity-verifier/internal/chains"
)

// Builder implements chains.Builder for Foundry projects
type Builder struct{}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Discover finds contract artifacts in out/{Source}.sol/{Contract}.json.
// Only contracts compiled from src/ are returned.
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]string, error) {
	outDir := filepath.Join(dir, "out")
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("out directory not found - run 'forge build' first")
	}

	var artifacts []string
	seen := make(map[string]bool)

	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}
		if strings.Contains(path, "build-info") {
			return nil
		}
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}

		contractName := strings.TrimSuffix(info.Name(), ".json")
		if seen[contractName] || !chains.Selected(contractName, opts) {
			return nil
		}

		sourcePath, err := sourcePathOf(path)
		if err != nil {
			return nil // unreadable artifacts are not ours
		}
		if !strings.HasPrefix(sourcePath, "src/") {
			return nil
		}

		seen[contractName] = true
		artifacts = append(artifacts, path)
		return nil
	})

	sort.Strings(artifacts)
	return artifacts, err
}

// Resolve returns out/{Name}.sol/{Name}.json, falling back to any
// out/*.sol/{Name}.json when the contract lives in a differently named file
func (b *Builder) Resolve(dir, contractName string) (string, error) {
	direct := filepath.Join(dir, "out", contractName+".sol", contractName+".json")
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "out", "*.sol", contractName+".json"))
	if err != nil {
		return "", fmt.Errorf("searching artifacts: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s in %s", chains.ErrArtifactNotFound, contractName, filepath.Join(dir, "out"))
	}
	sort.Strings(matches)
	return matches[0], nil
}

// artifactMetadata is the subset of a Foundry artifact needed for discovery
type artifactMetadata struct {
	RawMetadata string `json:"rawMetadata"`
}

type compilerMetadata struct {
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}

// sourcePathOf reads an artifact and returns its compilation target path
func sourcePathOf(artifactPath string) (string, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", err
	}

	var raw artifactMetadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	if raw.RawMetadata == "" {
		return "", fmt.Errorf("no metadata")
	}

	var meta compilerMetadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &meta); err != nil {
		return "", err
	}
	for k := range meta.Settings.CompilationTarget {
		return k, nil
	}
	return "", fmt.Errorf("no compilation target")
}
