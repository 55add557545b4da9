package state

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm/rpc"
)

// fakeReader serves storage from a map; unknown slots read as zero
type fakeReader struct {
	storage map[common.Hash]common.Hash
	err     error
}

func newFakeReader() *fakeReader {
	return &fakeReader{storage: make(map[common.Hash]common.Hash)}
}

func (f *fakeReader) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return nil, nil
}

func (f *fakeReader) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return f.storage[slot], nil
}

func (f *fakeReader) Call(ctx context.Context, addr common.Address, data []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeReader) ChecksumAddress(addr string) (string, error) {
	return rpc.ChecksumAddress(addr)
}

func (f *fakeReader) ZeroAddress() string {
	return common.Address{}.Hex()
}

var (
	testCrypto   = rpc.NewCrypto()
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func slotN(n int64) common.Hash {
	return common.BigToHash(big.NewInt(n))
}

func mustSchema(t *testing.T, raw string) *Schema {
	t.Helper()
	s, err := ParseSchema([]byte(raw))
	require.NoError(t, err)
	return s
}
