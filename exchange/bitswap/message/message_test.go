package message_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vijayee/bitswap-core/block/blocktest"
	"github.com/vijayee/bitswap-core/exchange/bitswap/message"
)

func TestRoundTripWantsAndCancels(t *testing.T) {
	b := blocktest.FromData([]byte("a"))

	m := message.New(false)
	m.AddEntry(b.Cid(), 5)
	other := blocktest.FromData([]byte("b"))
	m.AddCancel(other.Cid())

	raw, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := message.Unmarshal(raw)
	require.NoError(t, err)

	require.False(t, decoded.Full())
	require.Len(t, decoded.Wantlist(), 2)
	require.Equal(t, b.Cid(), decoded.Wantlist()[0].Cid)
	require.EqualValues(t, 5, decoded.Wantlist()[0].Priority)
	require.False(t, decoded.Wantlist()[0].Cancel)
	require.True(t, decoded.Wantlist()[1].Cancel)
}

func TestRoundTripBlocks(t *testing.T) {
	b := blocktest.FromData([]byte("payload bytes"))

	m := message.New(false)
	m.AddBlock(b)

	raw, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := message.Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, decoded.Blocks(), 1)
	require.Equal(t, b.Cid(), decoded.Blocks()[0].Cid())
	require.Equal(t, b.RawData(), decoded.Blocks()[0].RawData())
}

func TestRoundTripBlockPresences(t *testing.T) {
	b := blocktest.FromData([]byte("c"))

	m := message.New(false)
	m.AddBlockPresence(b.Cid(), message.DontHave)

	raw, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := message.Unmarshal(raw)
	require.NoError(t, err)
	require.Len(t, decoded.BlockPresences(), 1)
	require.Equal(t, message.DontHave, decoded.BlockPresences()[0].Type)
}

func TestFullWantlistFlag(t *testing.T) {
	m := message.New(true)
	raw, err := m.Marshal()
	require.NoError(t, err)

	decoded, err := message.Unmarshal(raw)
	require.NoError(t, err)
	require.True(t, decoded.Full())
}

func TestEmpty(t *testing.T) {
	m := message.New(false)
	require.True(t, m.Empty())
	m.AddCancel(blocktest.FromData([]byte("x")).Cid())
	require.False(t, m.Empty())
}

func TestSortWantlistOrdersByPriorityThenCid(t *testing.T) {
	low := blocktest.FromData([]byte("low"))
	high := blocktest.FromData([]byte("high"))

	m := message.New(false)
	m.AddEntry(low.Cid(), 1)
	m.AddEntry(high.Cid(), 10)
	m.SortWantlist()

	require.Equal(t, high.Cid(), m.Wantlist()[0].Cid)
	require.Equal(t, low.Cid(), m.Wantlist()[1].Cid)
}

func TestUnmarshalRejectsOversizedMessage(t *testing.T) {
	oversized := make([]byte, message.DefaultMaxTransmitSize+1)
	_, err := message.Unmarshal(oversized)
	require.Error(t, err)
}
