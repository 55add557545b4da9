// Package chains defines the capabilities the verification engine needs from
// the outside world (chain reads and hashing) and the registry of known chains.
package chains

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownChain is returned when a chain name is not registered
var ErrUnknownChain = errors.New("unknown chain")

// Reader provides read-only access to a chain
type Reader interface {
	// Code returns the runtime bytecode deployed at addr (empty when none)
	Code(ctx context.Context, addr common.Address) ([]byte, error)
	// StorageAt returns the raw 32-byte word stored at slot
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	// Call executes a read-only eth_call and returns the raw return data
	Call(ctx context.Context, addr common.Address, data []byte) ([]byte, error)
	// ChecksumAddress returns the EIP-55 form of a hex address
	ChecksumAddress(addr string) (string, error)
	// ZeroAddress is the checksummed all-zero address
	ZeroAddress() string
}

// Crypto provides hashing and ABI encoding
type Crypto interface {
	Keccak256(data ...[]byte) []byte
	// EncodeABI ABI-encodes values as the given Solidity types (abi.encode)
	EncodeABI(types []string, values []any) ([]byte, error)
	// EncodeCall builds calldata for fn from a JSON ABI
	EncodeCall(abiJSON []byte, fn string, args []any) ([]byte, error)
	// DecodeCall decodes the return data of fn
	DecodeCall(abiJSON []byte, fn string, data []byte) ([]any, error)
}

// Adapter is everything the orchestrator needs for one chain
type Adapter interface {
	Reader
	Crypto
}

// Config describes a chain the verifier can talk to
type Config struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	ChainID  uint64 `json:"chainId" yaml:"chainId" toml:"chainId"`
	RPCURL   string `json:"rpcUrl" yaml:"rpcUrl" toml:"rpcUrl"`
	Explorer string `json:"explorerUrl,omitempty" yaml:"explorerUrl,omitempty" toml:"explorerUrl,omitempty"`
}

// Registry holds the chains available to a verification run
type Registry struct {
	chains map[string]Config
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[string]Config),
	}
}

// Register adds or replaces a chain, keyed by lower-cased name
func (r *Registry) Register(c Config) {
	r.chains[strings.ToLower(c.Name)] = c
}

// Get retrieves a chain by name (case-insensitive)
func (r *Registry) Get(name string) (Config, bool) {
	c, ok := r.chains[strings.ToLower(name)]
	return c, ok
}

// MustGet is Get returning ErrUnknownChain
func (r *Registry) MustGet(name string) (Config, error) {
	c, ok := r.Get(name)
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownChain, name)
	}
	return c, nil
}

// List returns all registered chains sorted by name
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultRegistry returns a registry with the well-known public networks.
// RPC URLs are public endpoints and are normally overridden by config.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Config{Name: "ethereum-mainnet", ChainID: 1, RPCURL: "https://ethereum-rpc.publicnode.com", Explorer: "https://etherscan.io"})
	r.Register(Config{Name: "ethereum-sepolia", ChainID: 11155111, RPCURL: "https://ethereum-sepolia-rpc.publicnode.com", Explorer: "https://sepolia.etherscan.io"})
	r.Register(Config{Name: "linea-mainnet", ChainID: 59144, RPCURL: "https://rpc.linea.build", Explorer: "https://lineascan.build"})
	r.Register(Config{Name: "linea-sepolia", ChainID: 59141, RPCURL: "https://rpc.sepolia.linea.build", Explorer: "https://sepolia.lineascan.build"})
	return r
}
