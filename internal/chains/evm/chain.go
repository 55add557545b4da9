package evm

import (
	"fmt"

	"github.com/pendergraft/integrity-verifier/internal/chains"
)

// Chain groups the EVM build toolchains an artifact can come from
type Chain struct {
	builders []chains.Builder
}

// NewChain creates the EVM module with the given builders
func NewChain(builders ...chains.Builder) *Chain {
	return &Chain{builders: builders}
}

// Name returns the chain family identifier
func (c *Chain) Name() string {
	return "evm"
}

// DisplayName returns a human-readable name
func (c *Chain) DisplayName() string {
	return "Ethereum/EVM"
}

// Builders returns all available builders for this chain
func (c *Chain) Builders() []chains.Builder {
	return c.builders
}

// Builder returns the builder with the given name
func (c *Chain) Builder(name string) (chains.Builder, bool) {
	for _, b := range c.builders {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// DetectBuilder detects which builder is used in the given directory
func (c *Chain) DetectBuilder(dir string) (chains.Builder, error) {
	for _, b := range c.builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no EVM builder detected in %s", dir)
}
