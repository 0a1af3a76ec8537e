package bitswap

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/vijayee/bitswap-core/block/blocktest"
	"github.com/vijayee/bitswap-core/exchange/bitswap/message"
)

const (
	peerA = peer.ID("peer-a")
	peerB = peer.ID("peer-b")
)

// connectPeer calls Connect, pops the single resulting EventDial,
// asserting it names p, and simulates the swarm runtime completing the
// connection by calling OnConnectionEstablished.
func connectPeer(t *testing.T, e *Engine, p peer.ID) {
	t.Helper()
	e.Connect(p)
	ev, ok := e.Poll()
	require.True(t, ok)
	require.Equal(t, EventDial, ev.Kind)
	require.Equal(t, p, ev.Peer)
	e.OnConnectionEstablished(p)
}

func TestConnectTwicePrecedesOnlyOneDial(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.Connect(peerA)
	e.Connect(peerA)

	ev, ok := e.Poll()
	require.True(t, ok)
	require.Equal(t, EventDial, ev.Kind)

	_, ok = e.Poll()
	require.False(t, ok, "second Connect for the same peer must not re-enqueue a dial")
}

func TestConnectWhileAlreadyConnectedIsSilent(t *testing.T) {
	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)

	e.Connect(peerA)
	_, ok := e.Poll()
	require.False(t, ok, "connecting an already-connected peer must not enqueue a dial")
}

func TestTwoPeerBlockExchange(t *testing.T) {
	want := blocktest.FromData([]byte("hello world"))

	requester := NewEngine(DefaultConfig())
	connectPeer(t, requester, peerB)

	requester.WantBlock(want.Cid(), 1)

	ev, ok := requester.Poll()
	require.True(t, ok)
	require.Equal(t, EventNotifyHandler, ev.Kind)
	require.Equal(t, peerB, ev.Peer)
	require.Len(t, ev.Message.Wantlist(), 1)
	require.Equal(t, want.Cid(), ev.Message.Wantlist()[0].Cid)

	provider := NewEngine(DefaultConfig())
	connectPeer(t, provider, peerA)
	provider.OnHandlerMessage(peerA, MessageWrapper{Rx: ev.Message})

	gotWant, ok := provider.Poll()
	require.True(t, ok)
	require.Equal(t, EventGenerateEvent, gotWant.Kind)
	require.Equal(t, ReceivedWant, gotWant.User.Kind)
	require.Equal(t, want.Cid(), gotWant.User.Cid)

	provider.SendBlock(peerA, want)

	sendEv, ok := provider.Poll()
	require.True(t, ok)
	require.Equal(t, EventNotifyHandler, sendEv.Kind)
	require.Len(t, sendEv.Message.Blocks(), 1)
	require.Equal(t, want.Cid(), sendEv.Message.Blocks()[0].Cid())

	requester.OnHandlerMessage(peerB, MessageWrapper{Rx: sendEv.Message})

	recvEv, ok := requester.Poll()
	require.True(t, ok)
	require.Equal(t, EventGenerateEvent, recvEv.Kind)
	require.Equal(t, ReceivedBlock, recvEv.User.Kind)
	require.Equal(t, want.Cid(), recvEv.User.Block.Cid())

	require.EqualValues(t, 1, provider.Stats().SentBlocks)
	require.EqualValues(t, 1, requester.Stats().ReceivedBlocks)
}

func TestCancelPropagatesToPeerLedgerBeforeSend(t *testing.T) {
	c := blocktest.FromData([]byte("cancel me")).Cid()

	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)

	e.WantBlock(c, 1)
	e.CancelBlock(c)

	ev, ok := e.Poll()
	require.True(t, ok)
	require.Equal(t, EventNotifyHandler, ev.Kind)
	require.Len(t, ev.Message.Wantlist(), 1)
	require.True(t, ev.Message.Wantlist()[0].Cancel)
}

func TestReceivedBlockCancelsOutstandingWant(t *testing.T) {
	b := blocktest.FromData([]byte("arrived"))

	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)
	e.WantBlock(b.Cid(), 5)

	msg := message.New(false)
	msg.AddBlock(b)
	e.OnHandlerMessage(peerA, MessageWrapper{Rx: msg})

	var sawReceivedBlock bool
	for {
		ev, ok := e.Poll()
		if !ok {
			break
		}
		if ev.Kind == EventGenerateEvent && ev.User.Kind == ReceivedBlock {
			sawReceivedBlock = true
		}
	}
	require.True(t, sawReceivedBlock)

	entries := e.LocalWantlist()
	require.Empty(t, entries, "a received block must clear the corresponding local want")
}

func TestDuplicateBlockIsCountedSeparatelyFromUnique(t *testing.T) {
	b := blocktest.FromData([]byte("sent twice"))

	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)
	e.WantBlock(b.Cid(), 1)

	msg := message.New(false)
	msg.AddBlock(b)

	// First arrival: still wanted, counts as unique.
	e.OnHandlerMessage(peerA, MessageWrapper{Rx: msg})
	stats, ok := e.PeerStats(peerA)
	require.True(t, ok)
	require.EqualValues(t, 1, stats.Load().ReceivedBlocks)
	require.EqualValues(t, 0, stats.Load().DuplicateBlocks)

	// Same block arrives again after the want was already cleared by
	// the first receipt: no longer wanted, so it counts as a duplicate
	// instead of inflating ReceivedBlocks again.
	e.OnHandlerMessage(peerA, MessageWrapper{Rx: msg})
	require.EqualValues(t, 1, stats.Load().ReceivedBlocks)
	require.EqualValues(t, 1, stats.Load().DuplicateBlocks)
	require.EqualValues(t, len(b.RawData()), stats.Load().DuplicateData)
}

func TestOnConnectionEstablishedSendsFullWantlist(t *testing.T) {
	c := blocktest.FromData([]byte("already wanted")).Cid()

	e := NewEngine(DefaultConfig())
	e.WantBlock(c, 3)

	connectPeer(t, e, peerA)

	ev, ok := e.Poll()
	require.True(t, ok)
	require.Equal(t, EventNotifyHandler, ev.Kind)
	require.True(t, ev.Message.Full())
	require.Len(t, ev.Message.Wantlist(), 1)
}

func TestSubmitReadyBlockAppliesOnNextPoll(t *testing.T) {
	b := blocktest.FromData([]byte("ready"))

	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)

	require.NoError(t, e.SubmitReadyBlock(context.Background(), peerA, b))

	ev, ok := e.Poll()
	require.True(t, ok)
	require.Equal(t, EventNotifyHandler, ev.Kind)
	require.Len(t, ev.Message.Blocks(), 1)
}

func TestPollReturnsFalseWhenIdle(t *testing.T) {
	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)

	_, ok := e.Poll()
	require.False(t, ok)
}

func TestDisconnectDropsLedgerButKeepsStats(t *testing.T) {
	b := blocktest.FromData([]byte("stats survive"))

	e := NewEngine(DefaultConfig())
	connectPeer(t, e, peerA)
	e.SendBlock(peerA, b)
	e.Poll()

	e.OnConnectionClosed(peerA)
	_, ok := e.PeerWantlist(peerA)
	require.False(t, ok)

	stats, ok := e.PeerStats(peerA)
	require.True(t, ok)
	require.EqualValues(t, 1, stats.Load().SentBlocks)
}
