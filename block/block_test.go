package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vijayee/bitswap-core/block"
	"github.com/vijayee/bitswap-core/block/blocktest"
)

func TestNewBlockRoundTrip(t *testing.T) {
	b := blocktest.FromData([]byte("foobar\n"))
	require.True(t, b.Defined())
	require.Equal(t, []byte("foobar\n"), b.RawData())
}

func TestDecodeAcceptsMatchingHash(t *testing.T) {
	b := blocktest.FromData([]byte("hello"))
	decoded, err := block.Decode(b.Cid(), b.RawData())
	require.NoError(t, err)
	require.Equal(t, b.Cid(), decoded.Cid())
}

func TestDecodeRejectsTamperedData(t *testing.T) {
	b := blocktest.FromData([]byte("hello"))
	_, err := block.Decode(b.Cid(), []byte("goodbye"))
	require.Error(t, err)
}

func TestEqualityIsByCidAlone(t *testing.T) {
	a := block.NewBlock(blocktest.FromData([]byte("x")).Cid(), []byte("x"))
	b := block.NewBlock(blocktest.FromData([]byte("x")).Cid(), []byte("different-bytes-same-cid"))
	require.Equal(t, a.Cid(), b.Cid())
}
