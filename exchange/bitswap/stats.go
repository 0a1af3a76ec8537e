package bitswap

import "sync/atomic"

// Stats holds per-peer Bitswap counters. Per spec.md §5's
// shared-resource policy, a Stats value is shared by reference between
// the engine and any external observer and every field is updated with
// atomic, relaxed-ordering increments — the counters are advisory, not
// a source of truth for protocol decisions.
//
// The field set is supplemented from original_source's
// deprecated/bitswap/src/behaviour.rs Stats struct: spec.md §4.C only
// calls out sent_blocks explicitly, but the other five are ambient
// engine bookkeeping, not new protocol surface.
type Stats struct {
	SentBlocks      atomic.Uint64
	SentData        atomic.Uint64
	ReceivedBlocks  atomic.Uint64
	ReceivedData    atomic.Uint64
	DuplicateBlocks atomic.Uint64
	DuplicateData   atomic.Uint64
}

// NewStats returns a zeroed Stats.
func NewStats() *Stats {
	return &Stats{}
}

// UpdateOutgoing records numBlocks blocks having been sent.
func (s *Stats) UpdateOutgoing(numBlocks uint64) {
	s.SentBlocks.Add(numBlocks)
}

// UpdateIncomingUnique records one newly-seen block of the given size
// having been received.
func (s *Stats) UpdateIncomingUnique(bytes uint64) {
	s.ReceivedBlocks.Add(1)
	s.ReceivedData.Add(bytes)
}

// UpdateIncomingDuplicate records one already-held block of the given
// size having been received again.
func (s *Stats) UpdateIncomingDuplicate(bytes uint64) {
	s.DuplicateBlocks.Add(1)
	s.DuplicateData.Add(bytes)
}

// Snapshot is an immutable point-in-time copy of Stats, safe to hand to
// callers outside the engine.
type Snapshot struct {
	SentBlocks      uint64
	SentData        uint64
	ReceivedBlocks  uint64
	ReceivedData    uint64
	DuplicateBlocks uint64
	DuplicateData   uint64
}

// Load reads a consistent-enough snapshot of s. Because updates are
// relaxed/advisory, concurrent writers may interleave with this read;
// callers should treat the result as approximate.
func (s *Stats) Load() Snapshot {
	return Snapshot{
		SentBlocks:      s.SentBlocks.Load(),
		SentData:        s.SentData.Load(),
		ReceivedBlocks:  s.ReceivedBlocks.Load(),
		ReceivedData:    s.ReceivedData.Load(),
		DuplicateBlocks: s.DuplicateBlocks.Load(),
		DuplicateData:   s.DuplicateData.Load(),
	}
}

// Add returns a new Snapshot holding the sum of s's and other's
// counters; s itself is not modified.
func (s Snapshot) Add(other Snapshot) Snapshot {
	return Snapshot{
		SentBlocks:      s.SentBlocks + other.SentBlocks,
		SentData:        s.SentData + other.SentData,
		ReceivedBlocks:  s.ReceivedBlocks + other.ReceivedBlocks,
		ReceivedData:    s.ReceivedData + other.ReceivedData,
		DuplicateBlocks: s.DuplicateBlocks + other.DuplicateBlocks,
		DuplicateData:   s.DuplicateData + other.DuplicateData,
	}
}
