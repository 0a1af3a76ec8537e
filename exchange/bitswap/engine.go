// Package bitswap implements the Bitswap behaviour: a per-peer ledger
// engine tracking want-lists, inbound/outbound message queues, and
// statistics, driven by a swarm-style poll loop (spec.md §4.C).
//
// The engine does not itself dial peers, open streams, or serialize
// bytes onto a socket — those are the surrounding swarm runtime's job,
// deliberately out of scope per spec.md §1. The engine only decides
// *what* should be dialed or sent next and hands that decision to the
// host via Poll.
package bitswap

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/vijayee/bitswap-core/block"
	"github.com/vijayee/bitswap-core/exchange/bitswap/message"
)

var log = logging.Logger("bitswap")

// EventKind distinguishes the three shapes of work Poll can report.
type EventKind int

const (
	// EventDial asks the host to dial Peer.
	EventDial EventKind = iota
	// EventNotifyHandler asks the host to transmit Message to Peer.
	EventNotifyHandler
	// EventGenerateEvent hands the host a user-facing UserEvent.
	EventGenerateEvent
)

// Event is one item Poll may report.
type Event struct {
	Kind    EventKind
	Peer    peer.ID
	Message *message.Message
	User    UserEvent
}

// UserEventKind distinguishes the three user-facing notifications the
// engine emits while processing inbound messages (spec.md §4.C).
type UserEventKind int

const (
	ReceivedBlock UserEventKind = iota
	ReceivedWant
	ReceivedCancel
)

// UserEvent is the engine's equivalent of rust-ipfs's BitswapEvent
// enum: ReceivedBlock(peer, block) | ReceivedWant(peer, cid, priority)
// | ReceivedCancel(peer, cid).
type UserEvent struct {
	Kind     UserEventKind
	Peer     peer.ID
	Block    block.Block
	Cid      cid.Cid
	Priority Priority
}

// MessageWrapper distinguishes an outgoing-message acknowledgement
// (Tx) from a freshly received inbound message (Rx), mirroring the
// rust OneShotHandler's MessageWrapper the teacher's ConnectionHandler
// hands to the behaviour.
type MessageWrapper struct {
	Rx *message.Message // nil for a Tx acknowledgement
}

// Engine multiplexes per-peer Ledgers, injects lifecycle/message
// events, and drives the outbound queue (spec.md §3 "Bitswap engine
// state", §4.C).
type Engine struct {
	cfg Config

	events []Event

	targetPeers    map[peer.ID]struct{}
	connectedPeers map[peer.ID]*Ledger

	wantedBlocks map[cid.Cid]Priority

	stats map[peer.ID]*Stats

	rotor rotor

	readyBlocks chan readyBlockMsg
	dontHave    chan dontHaveMsg
}

type readyBlockMsg struct {
	peer  peer.ID
	block block.Block
}

type dontHaveMsg struct {
	peer peer.ID
	cid  cid.Cid
}

// NewEngine constructs an Engine with no connected or target peers and
// an empty wantlist.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:            cfg,
		targetPeers:    make(map[peer.ID]struct{}),
		connectedPeers: make(map[peer.ID]*Ledger),
		wantedBlocks:   make(map[cid.Cid]Priority),
		stats:          make(map[peer.ID]*Stats),
		readyBlocks:    make(chan readyBlockMsg, cfg.ReadyBlocksBufferSize),
		dontHave:       make(chan dontHaveMsg, cfg.DontHaveBufferSize),
	}
}

// LocalWantlist returns the engine's own wantlist (spec.md §3
// wanted_blocks).
func (e *Engine) LocalWantlist() []WantlistEntry {
	out := make([]WantlistEntry, 0, len(e.wantedBlocks))
	for c, p := range e.wantedBlocks {
		out = append(out, WantlistEntry{Cid: c, Priority: p})
	}
	return out
}

// PeerWantlist returns the wantlist a connected peer has sent us, if
// we know of that peer.
func (e *Engine) PeerWantlist(p peer.ID) ([]WantlistEntry, bool) {
	l, ok := e.connectedPeers[p]
	if !ok {
		return nil, false
	}
	return l.Wantlist(), true
}

// Peers returns the currently connected peers.
func (e *Engine) Peers() []peer.ID {
	out := make([]peer.ID, 0, len(e.connectedPeers))
	for p := range e.connectedPeers {
		out = append(out, p)
	}
	return out
}

// Stats aggregates every known peer's counters into one snapshot.
func (e *Engine) Stats() Snapshot {
	var total Snapshot
	for _, s := range e.stats {
		total = total.Add(s.Load())
	}
	return total
}

// PeerStats returns the Stats handle for a given peer, if one exists
// (created on connect, retained after disconnect per spec.md §4.C).
func (e *Engine) PeerStats(p peer.ID) (*Stats, bool) {
	s, ok := e.stats[p]
	return s, ok
}

// Connect marks peer as a dial target and enqueues a Dial event gated
// on "only if currently disconnected"; idempotent when the peer is
// already a target (spec.md §4.C).
func (e *Engine) Connect(p peer.ID) {
	if _, alreadyConnected := e.connectedPeers[p]; alreadyConnected {
		return
	}
	if _, ok := e.targetPeers[p]; ok {
		return
	}
	e.targetPeers[p] = struct{}{}
	e.events = append(e.events, Event{Kind: EventDial, Peer: p})
}

// WantBlock records cid in the global wantlist and propagates it into
// every connected peer's ledger, last-priority-wins (spec.md §4.C).
func (e *Engine) WantBlock(c cid.Cid, priority Priority) {
	for _, l := range e.connectedPeers {
		l.WantBlock(c, priority)
	}
	e.wantedBlocks[c] = priority
}

// WantBlockFromPeers is the restricted variant of WantBlock: it still
// records the CID globally but only propagates it to the listed peers.
func (e *Engine) WantBlockFromPeers(c cid.Cid, priority Priority, peers []peer.ID) {
	for _, p := range peers {
		if l, ok := e.connectedPeers[p]; ok {
			l.WantBlock(c, priority)
		}
	}
	e.wantedBlocks[c] = priority
}

// CancelBlock clears cid from the global wantlist and every connected
// peer's ledger.
func (e *Engine) CancelBlock(c cid.Cid) {
	for _, l := range e.connectedPeers {
		l.CancelBlock(c)
	}
	delete(e.wantedBlocks, c)
}

// SendBlock enqueues block on peer's ledger if connected; it is
// silently dropped if the peer is not (spec.md §4.C).
func (e *Engine) SendBlock(p peer.ID, b block.Block) {
	if l, ok := e.connectedPeers[p]; ok {
		l.AddBlock(b)
	}
}

// DontHave removes cid from every connected peer's received want-list:
// a local-only signal used when the caller has determined it cannot
// serve the block to anyone.
func (e *Engine) DontHave(c cid.Cid) {
	for _, l := range e.connectedPeers {
		l.ForgetReceivedWant(c)
	}
}

// DontHaveForPeer is the single-peer variant of DontHave.
func (e *Engine) DontHaveForPeer(p peer.ID, c cid.Cid) {
	if l, ok := e.connectedPeers[p]; ok {
		l.ForgetReceivedWant(c)
	}
}

// SubmitReadyBlock hands a block a background producer fetched for
// peer over to the engine, to be applied as SendBlock on the next
// Poll. It blocks until there is buffer room or ctx is done, which is
// this core's documented backpressure policy for the otherwise
// unbounded channel spec.md §3 describes.
func (e *Engine) SubmitReadyBlock(ctx context.Context, p peer.ID, b block.Block) error {
	select {
	case e.readyBlocks <- readyBlockMsg{peer: p, block: b}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitDontHave is the don't-have channel's producer-side entry
// point, with the same backpressure policy as SubmitReadyBlock.
func (e *Engine) SubmitDontHave(ctx context.Context, p peer.ID, c cid.Cid) error {
	select {
	case e.dontHave <- dontHaveMsg{peer: p, cid: c}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnConnectionEstablished is the lifecycle callback the swarm runtime
// invokes once a connection to peer completes (spec.md §4.C).
func (e *Engine) OnConnectionEstablished(p peer.ID) {
	delete(e.targetPeers, p)

	e.connectedPeers[p] = NewLedger()
	if _, ok := e.stats[p]; !ok {
		e.stats[p] = NewStats()
	}

	e.sendFullWantlist(p)
}

// OnConnectionClosed is the lifecycle callback invoked once a
// connection to peer is torn down. The Ledger is dropped; Stats are
// retained for the engine's lifetime.
func (e *Engine) OnConnectionClosed(p peer.ID) {
	delete(e.connectedPeers, p)
}

func (e *Engine) sendFullWantlist(p peer.ID) {
	if len(e.wantedBlocks) == 0 {
		return
	}

	m := message.New(true)
	for c, priority := range e.wantedBlocks {
		m.AddEntry(c, priority)
	}
	m.SortWantlist()

	e.events = append(e.events, Event{Kind: EventNotifyHandler, Peer: p, Message: m})
}

// OnHandlerMessage is the lifecycle callback invoked with every
// message the connection handler hands up: a Tx acknowledgement for an
// outgoing send, or an Rx for a freshly received message (spec.md
// §4.C). Inbound processing happens in the strict order the spec
// requires: cancels, then wants, then blocks.
func (e *Engine) OnHandlerMessage(p peer.ID, wrapper MessageWrapper) {
	if wrapper.Rx == nil {
		return
	}
	msg := wrapper.Rx

	l, ok := e.connectedPeers[p]
	if !ok {
		log.Debugf("bitswap: message from peer %s not in connectedPeers", p)
		return
	}

	currentWantlist := e.wantedBlocks

	for _, entry := range msg.Wantlist() {
		if !entry.Cancel {
			continue
		}
		l.ReceiveCancel(entry.Cid)
		e.events = append(e.events, Event{Kind: EventGenerateEvent, User: UserEvent{
			Kind: ReceivedCancel,
			Peer: p,
			Cid:  entry.Cid,
		}})
	}

	for _, entry := range msg.Wantlist() {
		if entry.Cancel {
			continue
		}
		if _, alreadyWanted := currentWantlist[entry.Cid]; alreadyWanted {
			continue
		}
		l.ReceiveWant(entry.Cid, entry.Priority)
		e.events = append(e.events, Event{Kind: EventGenerateEvent, User: UserEvent{
			Kind:     ReceivedWant,
			Peer:     p,
			Cid:      entry.Cid,
			Priority: entry.Priority,
		}})
	}

	if stats, ok := e.stats[p]; ok {
		for _, b := range msg.Blocks() {
			// A block we no longer (or never) have an outstanding want
			// for is one we already received, or never asked for: a
			// duplicate per spec.md §3's engine-local duplicate_blocks
			// accounting. wantedBlocks still reflects the pre-receipt
			// state here, since CancelBlock for this message's blocks
			// hasn't run yet.
			if _, stillWanted := e.wantedBlocks[b.Cid()]; stillWanted {
				stats.UpdateIncomingUnique(uint64(len(b.RawData())))
			} else {
				stats.UpdateIncomingDuplicate(uint64(len(b.RawData())))
			}
		}
	}

	for _, b := range msg.Blocks() {
		e.CancelBlock(b.Cid())
		e.events = append(e.events, Event{Kind: EventGenerateEvent, User: UserEvent{
			Kind:  ReceivedBlock,
			Peer:  p,
			Block: b,
		}})
	}
}

// Poll performs exactly one scheduling step: pop a queued event if
// any, otherwise drain the dont_have and ready_blocks channels, then
// scan connected peers (starting from a rotating offset, so no peer's
// Ledger is perpetually last) for the first one with a pending
// outbound message. It returns (Event{}, false) — "Pending" — when
// none of that produced work.
//
// Poll must never block, sleep, or allocate unbounded memory, so that
// it composes under a larger swarm poller (spec.md §9).
func (e *Engine) Poll() (Event, bool) {
	if len(e.events) > 0 {
		ev := e.events[0]
		e.events = e.events[1:]
		return ev, true
	}

	e.drainDontHave()
	e.drainReadyBlocks()

	peers := e.rotor.order(e.Peers())
	for _, p := range peers {
		l, ok := e.connectedPeers[p]
		if !ok {
			continue
		}
		m := l.Send()
		if m == nil {
			continue
		}

		if s, ok := e.stats[p]; ok {
			s.UpdateOutgoing(uint64(len(m.Blocks())))
		}

		return Event{Kind: EventNotifyHandler, Peer: p, Message: m}, true
	}

	return Event{}, false
}

func (e *Engine) drainDontHave() {
	for {
		select {
		case item := <-e.dontHave:
			e.DontHaveForPeer(item.peer, item.cid)
		default:
			return
		}
	}
}

func (e *Engine) drainReadyBlocks() {
	for {
		select {
		case item := <-e.readyBlocks:
			e.SendBlock(item.peer, item.block)
		default:
			return
		}
	}
}

func (k EventKind) String() string {
	switch k {
	case EventDial:
		return "Dial"
	case EventNotifyHandler:
		return "NotifyHandler"
	case EventGenerateEvent:
		return "GenerateEvent"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}
