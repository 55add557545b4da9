package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

type fakeBackend struct {
	code    []byte
	storage map[common.Hash][]byte
	callOut []byte
	err     error

	lastCall ethereum.CallMsg
	closed   bool
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code, f.err
}

func (f *fakeBackend) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	return f.storage[key], f.err
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.lastCall = call
	return f.callOut, f.err
}

func (f *fakeBackend) Close() {
	f.closed = true
}

var contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestClientReads(t *testing.T) {
	slot := common.BigToHash(big.NewInt(1))
	backend := &fakeBackend{
		code:    []byte{0x60, 0x80},
		storage: map[common.Hash][]byte{slot: {0x2a}},
		callOut: []byte{0x01},
	}
	c := New("linea-mainnet", backend)
	ctx := context.Background()

	code, err := c.Code(ctx, contractAddr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)

	w, err := c.StorageAt(ctx, contractAddr, slot)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), w.Big())

	out, err := c.Call(ctx, contractAddr, []byte{0xaa})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, out)
	require.NotNil(t, backend.lastCall.To)
	assert.Equal(t, contractAddr, *backend.lastCall.To)
	assert.Equal(t, []byte{0xaa}, backend.lastCall.Data)

	assert.Equal(t, "linea-mainnet", c.Chain())
	assert.Equal(t, "0x0000000000000000000000000000000000000000", c.ZeroAddress())

	c.Close()
	assert.True(t, backend.closed)
}

func TestClientWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	c := New("linea-mainnet", &fakeBackend{err: boom})

	_, err := c.Code(context.Background(), contractAddr)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "eth_getCode")

	_, err = c.StorageAt(context.Background(), contractAddr, common.Hash{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "eth_getStorageAt")
}

func TestClientRateLimitHonoursContext(t *testing.T) {
	c := New("linea-mainnet", &fakeBackend{}, WithRateLimit(1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Code(ctx, contractAddr)
	assert.Error(t, err)
}

func TestClientIsAdapter(t *testing.T) {
	c := New("linea-mainnet", &fakeBackend{}, WithRateLimit(0, 0), WithTimeout(0))
	assert.Nil(t, c.limiter)
	assert.Equal(t, "a9059cbb", evm.Selector(c, "transfer(address,uint256)"))

	var _ chains.Adapter = c
}

func TestDial_RejectsNonNetworkURLs(t *testing.T) {
	for _, url := range []string{"/var/run/geth.ipc", "file:///tmp/geth.ipc", "unix:///tmp/geth.ipc"} {
		t.Run(url, func(t *testing.T) {
			_, err := Dial(context.Background(), chains.Config{Name: "devnet", RPCURL: url})
			assert.ErrorIs(t, err, ErrUnsupportedURL)
		})
	}
}
