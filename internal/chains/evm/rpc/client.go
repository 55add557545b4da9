// Package rpc is the go-ethereum backed chain adapter: JSON-RPC reads through
// ethclient, keccak256 and the ABI codec.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/observability/metrics"
	"github.com/pendergraft/integrity-verifier/internal/validation"
)

// ErrUnsupportedURL is returned for endpoints that are not http(s) or ws(s),
// such as IPC socket paths
var ErrUnsupportedURL = errors.New("unsupported RPC URL")

// Backend is the subset of ethclient.Client the adapter uses
type Backend interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Client implements chains.Adapter against one chain. Reads hit the latest block.
type Client struct {
	*Crypto

	chain   string
	backend Backend
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithRateLimit caps requests per second with the given burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout bounds each request
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New wraps an existing backend
func New(chain string, backend Backend, opts ...Option) *Client {
	c := &Client{
		Crypto:  NewCrypto(),
		chain:   chain,
		backend: backend,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to the chain's RPC endpoint
func Dial(ctx context.Context, cfg chains.Config, opts ...Option) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain %s has no RPC URL", cfg.Name)
	}
	if err := validation.ValidateRPCURL(cfg.RPCURL); err != nil {
		return nil, fmt.Errorf("%w for chain %s: %v", ErrUnsupportedURL, cfg.Name, err)
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Name, err)
	}
	return New(cfg.Name, ec, opts...), nil
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.backend.Close()
}

// Chain returns the chain name the client talks to
func (c *Client) Chain() string {
	return c.chain
}

// do waits for the limiter, applies the timeout and records metrics
func (c *Client) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.RPCRequest(c.chain, method, err, time.Since(start))
	if err != nil {
		c.logger.Debug("rpc request failed", "chain", c.chain, "method", method, "error", err)
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Code returns the runtime bytecode at addr
func (c *Client) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	err := c.do(ctx, "eth_getCode", func(ctx context.Context) (err error) {
		code, err = c.backend.CodeAt(ctx, addr, nil)
		return err
	})
	return code, err
}

// StorageAt returns the word stored at slot
func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	var raw []byte
	err := c.do(ctx, "eth_getStorageAt", func(ctx context.Context) (err error) {
		raw, err = c.backend.StorageAt(ctx, addr, slot, nil)
		return err
	})
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// Call performs a read-only eth_call
func (c *Client) Call(ctx context.Context, addr common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "eth_call", func(ctx context.Context) (err error) {
		out, err = c.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
		return err
	})
	return out, err
}

// ChecksumAddress returns the EIP-55 form of addr
func (c *Client) ChecksumAddress(addr string) (string, error) {
	return ChecksumAddress(addr)
}

// ZeroAddress is the checksummed all-zero address
func (c *Client) ZeroAddress() string {
	return common.Address{}.Hex()
}

// ChecksumAddress returns the EIP-55 form of a 0x-prefixed hex address
func ChecksumAddress(addr string) (string, error) {
	if len(addr) != 42 || !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// Dialer returns a function that connects to any configured chain with the same options
func Dialer(opts ...Option) func(ctx context.Context, cfg chains.Config) (chains.Adapter, error) {
	return func(ctx context.Context, cfg chains.Config) (chains.Adapter, error) {
		c, err := Dial(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
