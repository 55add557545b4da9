package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/foundry"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/hardhat"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

// FileSource reads artifacts and schemas from disk. Paths are relative to
// Dir. An artifactFile without a .json extension is a contract name, looked
// up in the Foundry or Hardhat project at Dir.
type FileSource struct {
	Dir string

	toolchain *evm.Chain

	mu        sync.Mutex
	artifacts map[string]*evm.Artifact
	schemas   map[string]*state.Schema
}

// NewFileSource creates a source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{
		Dir:       dir,
		toolchain: evm.NewChain(foundry.New(), hardhat.New()),
		artifacts: make(map[string]*evm.Artifact),
		schemas:   make(map[string]*state.Schema),
	}
}

// Artifact implements domain.ArtifactSource
func (s *FileSource) Artifact(c domain.Contract) (*evm.Artifact, error) {
	path, err := s.artifactPath(c.ArtifactFile)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.artifacts[path]; ok {
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", chains.ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	a, err := evm.ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.artifacts[path] = a
	return a, nil
}

// Schema implements domain.ArtifactSource
func (s *FileSource) Schema(c domain.Contract) (*state.Schema, error) {
	if c.State == nil || c.State.SchemaFile == "" {
		return nil, nil
	}
	path := s.resolve(c.State.SchemaFile)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schemas[path]; ok {
		return sc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	sc, err := state.ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.schemas[path] = sc
	return sc, nil
}

func (s *FileSource) artifactPath(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: no artifact file", chains.ErrArtifactNotFound)
	}
	if strings.HasSuffix(strings.ToLower(ref), ".json") || strings.ContainsRune(ref, filepath.Separator) || strings.Contains(ref, "/") {
		return s.resolve(ref), nil
	}

	builder, err := s.toolchain.DetectBuilder(s.Dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	return builder.Resolve(s.Dir, ref)
}

func (s *FileSource) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Dir, path)
}
