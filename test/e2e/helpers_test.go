//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/rpc"
	"github.com/pendergraft/integrity-verifier/internal/config"
	"github.com/pendergraft/integrity-verifier/internal/server"
	"github.com/pendergraft/integrity-verifier/internal/storage"
	"github.com/pendergraft/integrity-verifier/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
	Chain             *fakeChain
}

const (
	tokenAddress  = "0x00000000000000000000000000000000000000aa"
	emptyAddress  = "0x00000000000000000000000000000000000000ee"
	tokenSupply   = 42
	fakeChainName = "linea-mainnet"
)

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("verifier"),
		postgres.WithUsername("verifier"),
		postgres.WithPassword("verifier"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the server in-process against Postgres and the fake chain
func startServerE(connString string, chain *fakeChain) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:          8080,
			Host:          "0.0.0.0",
			MaxBodySizeMB: 50,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		RPC:       config.RPCConfig{RequestsPerSecond: 100, Burst: 100, Timeout: 10 * time.Second},
		Verify:    config.VerifyConfig{Concurrency: 4, MaxContracts: 50, RunTimeout: time.Minute},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dial := func(ctx context.Context, c chains.Config) (chains.Adapter, error) {
		if c.Name != fakeChainName {
			return nil, fmt.Errorf("no fake for chain %s", c.Name)
		}
		return chain, nil
	}
	srv := server.New(cfg, store, logger, server.WithDialer(dial))

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient() *client.Client {
	return client.New(testCtx.TestServer.URL, client.WithTimeout(time.Minute))
}

// fakeChain is a read-only chain holding one token contract
type fakeChain struct {
	*rpc.Crypto
	code    map[common.Address][]byte
	storage map[common.Address]map[common.Hash]common.Hash
}

func newFakeChain() *fakeChain {
	token := common.HexToAddress(tokenAddress)
	return &fakeChain{
		Crypto: rpc.NewCrypto(),
		code:   map[common.Address][]byte{token: tokenRuntime()},
		storage: map[common.Address]map[common.Hash]common.Hash{
			token: {common.Hash{}: common.BigToHash(big.NewInt(tokenSupply))},
		},
	}
}

func (f *fakeChain) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return f.code[addr], nil
}

func (f *fakeChain) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	return f.storage[addr][slot], nil
}

func (f *fakeChain) Call(ctx context.Context, addr common.Address, data []byte) ([]byte, error) {
	return nil, errors.New("execution reverted")
}

func (f *fakeChain) ChecksumAddress(addr string) (string, error) {
	return rpc.ChecksumAddress(addr)
}

func (f *fakeChain) ZeroAddress() string {
	return common.Address{}.Hex()
}

// tokenRuntime is a dispatcher for totalSupply()
func tokenRuntime() []byte {
	sel, _ := hex.DecodeString(evm.Selector(rpc.NewCrypto(), "totalSupply()"))
	var b bytes.Buffer
	b.Write([]byte{0x80, 0x63})
	b.Write(sel)
	b.Write([]byte{0x14, 0x61, 0x00, 0x40, 0x57, 0x5b, 0x00})
	return b.Bytes()
}

// tokenArtifact is a Hardhat artifact for the fake token
func tokenArtifact(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"contractName": "Token",
		"abi": []map[string]any{{
			"type":            "function",
			"name":            "totalSupply",
			"inputs":          []any{},
			"outputs":         []map[string]string{{"name": "", "type": "uint256"}},
			"stateMutability": "view",
		}},
		"bytecode":         "0x00",
		"deployedBytecode": "0x" + hex.EncodeToString(tokenRuntime()),
	})
	require.NoError(t, err)
	return raw
}

func tokenRequest(t *testing.T, suiteName, address string) client.VerifyRequest {
	t.Helper()
	return client.VerifyRequest{
		Suite: client.Suite{
			Name: suiteName,
			Contracts: []client.Contract{{
				Name:              "Token",
				Chain:             fakeChainName,
				Address:           address,
				ArtifactFile:      "Token.json",
				StateVerification: json.RawMessage(fmt.Sprintf(`{"slots":[{"slot":"0x0","type":"uint256","name":"totalSupply","expected":"%d"}]}`, tokenSupply)),
			}},
		},
		Artifacts: map[string]json.RawMessage{"Token.json": tokenArtifact(t)},
	}
}

func assertAPIError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, expectedCode, apiErr.Code)
}
