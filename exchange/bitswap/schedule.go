package bitswap

import "github.com/libp2p/go-libp2p/core/peer"

// rotor picks a fair starting point for the per-peer scan in
// Engine.poll step 4 (spec.md §4.C "Scheduler step"), so that a peer
// near the end of map iteration order is not perpetually starved.
//
// This is a reduced adaptation of the teacher's
// exchange/bitswap/decision/peer_request_queue.go, which keeps a full
// priority queue of activePartners so busy peers don't starve each
// other's serving tasks. That machinery exists to schedule which
// *block-serving task* runs next, a concern spec.md places in the
// decision/serving-strategy area this core does not own (the core only
// asks "whose queued Ledger.Send() runs first this poll"). rotor keeps
// the teacher's core idea — don't always start from the same place —
// without the task/priority-queue apparatus that idea doesn't need
// here.
type rotor struct {
	next int
}

// order returns peers in connected-peer order starting from the
// rotor's current offset, then advances the offset by one so the next
// call starts one peer later.
func (r *rotor) order(peers []peer.ID) []peer.ID {
	if len(peers) == 0 {
		return peers
	}

	start := r.next % len(peers)
	r.next = (r.next + 1) % len(peers)

	ordered := make([]peer.ID, 0, len(peers))
	ordered = append(ordered, peers[start:]...)
	ordered = append(ordered, peers[:start]...)
	return ordered
}
