package bitswap

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/vijayee/bitswap-core/block"
	"github.com/vijayee/bitswap-core/exchange/bitswap/message"
)

// Priority orders want-list entries; higher is more urgent. Spec.md
// §3 requires only that higher-priority entries SHOULD precede lower
// ones when a message is built, not a strict global order.
type Priority = int32

// WantlistEntry pairs a CID with the priority it was requested at.
type WantlistEntry struct {
	Cid      cid.Cid
	Priority Priority
}

// Ledger is the per-peer bookkeeping described in spec.md §3/§4.B: what
// we've asked this peer for, what they've asked us for, and what is
// queued to send them next. All methods are synchronous and
// infallible — a Ledger never talks to the network itself, it only
// accumulates state that Engine.poll later drains via Send().
type Ledger struct {
	mu sync.Mutex

	// sentWantList is persistent: per spec.md §3's invariant, a CID
	// stays here until CancelBlock removes it, independent of whether
	// it has already been communicated on the wire.
	sentWantList map[cid.Cid]Priority
	// pendingWants tracks which sentWantList entries have not yet been
	// included in an outbound message; Send() drains this, not
	// sentWantList.
	pendingWants map[cid.Cid]struct{}

	receivedWantList map[cid.Cid]Priority

	queuedBlocks   []block.Block
	queuedBlockSet map[cid.Cid]struct{}

	sentCancels map[cid.Cid]struct{}
}

// NewLedger returns an empty ledger for a newly connected peer.
func NewLedger() *Ledger {
	return &Ledger{
		sentWantList:     make(map[cid.Cid]Priority),
		pendingWants:     make(map[cid.Cid]struct{}),
		receivedWantList: make(map[cid.Cid]Priority),
		queuedBlockSet:   make(map[cid.Cid]struct{}),
		sentCancels:      make(map[cid.Cid]struct{}),
	}
}

// WantBlock records that we want c from this peer at priority. If c
// was pending cancellation it is un-cancelled: a CID never sits in
// both sentWantList and sentCancels at once.
func (l *Ledger) WantBlock(c cid.Cid, priority Priority) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sentWantList[c] = priority
	l.pendingWants[c] = struct{}{}
	delete(l.sentCancels, c)
}

// CancelBlock stops wanting c from this peer. If c was outstanding in
// sentWantList, a cancel is queued for the next Send() so the peer
// learns we no longer want it.
func (l *Ledger) CancelBlock(c cid.Cid) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.sentWantList[c]; ok {
		delete(l.sentWantList, c)
		delete(l.pendingWants, c)
		l.sentCancels[c] = struct{}{}
	}
}

// AddBlock queues b for transmission to this peer, unless a block
// with the same CID is already queued.
func (l *Ledger) AddBlock(b block.Block) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.queuedBlockSet[b.Cid()]; ok {
		return
	}
	l.queuedBlockSet[b.Cid()] = struct{}{}
	l.queuedBlocks = append(l.queuedBlocks, b)
}

// ReceiveWant records that the peer wants c at priority, as part of
// processing an inbound message (spec.md §4.C step 2).
func (l *Ledger) ReceiveWant(c cid.Cid, priority Priority) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivedWantList[c] = priority
}

// ReceiveCancel removes c from the peer's received want-list, as part
// of processing an inbound cancel (spec.md §4.C step 1).
func (l *Ledger) ReceiveCancel(c cid.Cid) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.receivedWantList, c)
}

// ForgetReceivedWant drops c from the received want-list without
// emitting any event — used by Engine's dont_have/dont_have_for_peer.
func (l *Ledger) ForgetReceivedWant(c cid.Cid) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.receivedWantList, c)
}

// Wantlist snapshots what this peer has asked us for.
func (l *Ledger) Wantlist() []WantlistEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]WantlistEntry, 0, len(l.receivedWantList))
	for c, p := range l.receivedWantList {
		out = append(out, WantlistEntry{Cid: c, Priority: p})
	}
	return out
}

// SentWantList snapshots what we have asked this peer for, including
// entries already flushed in a prior Send().
func (l *Ledger) SentWantList() map[cid.Cid]Priority {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[cid.Cid]Priority, len(l.sentWantList))
	for c, p := range l.sentWantList {
		out[c] = p
	}
	return out
}

// Send drains queuedBlocks, sentCancels, and any not-yet-transmitted
// entries of sentWantList into a single outbound Message, per spec.md
// §4.B. It returns nil iff all three are empty. sentWantList itself is
// NOT cleared — the invariant in spec.md §3 requires wanted CIDs to
// remain there until CancelBlock — only the "what's new since the last
// Send" bookkeeping is drained.
func (l *Ledger) Send() *message.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queuedBlocks) == 0 && len(l.sentCancels) == 0 && len(l.pendingWants) == 0 {
		return nil
	}

	m := message.New(false)

	for _, b := range l.queuedBlocks {
		m.AddBlock(b)
	}
	l.queuedBlocks = nil
	l.queuedBlockSet = make(map[cid.Cid]struct{})

	for c := range l.sentCancels {
		m.AddCancel(c)
	}
	l.sentCancels = make(map[cid.Cid]struct{})

	for c := range l.pendingWants {
		m.AddEntry(c, l.sentWantList[c])
	}
	l.pendingWants = make(map[cid.Cid]struct{})

	m.SortWantlist()

	return m
}
