package domain

import (
	"fmt"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
)

// StaticSource serves artifacts and schemas that were parsed up front, keyed
// by the contract's artifactFile and schemaFile.
type StaticSource struct {
	Artifacts map[string]*evm.Artifact
	Schemas   map[string]*state.Schema
}

// Artifact implements ArtifactSource.
func (s StaticSource) Artifact(c Contract) (*evm.Artifact, error) {
	a, ok := s.Artifacts[c.ArtifactFile]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chains.ErrArtifactNotFound, c.ArtifactFile)
	}
	return a, nil
}

// Schema implements ArtifactSource.
func (s StaticSource) Schema(c Contract) (*state.Schema, error) {
	if c.State == nil || c.State.SchemaFile == "" {
		return nil, nil
	}
	sc, ok := s.Schemas[c.State.SchemaFile]
	if !ok {
		return nil, fmt.Errorf("schema not found: %s", c.State.SchemaFile)
	}
	return sc, nil
}
