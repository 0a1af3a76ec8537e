// Package pin implements the transactional pin store (spec.md §4.D):
// tracking which CIDs are held directly, recursively, or indirectly
// (as a dependency of some recursive pin), with the same key schema
// and transactional-retry discipline as the original sled-backed
// store, rebuilt here on a real embedded KV engine.
package pin

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// Mode distinguishes why a CID is pinned.
type Mode int

const (
	// Direct pins exactly the named CID, with no implication about
	// its links.
	Direct Mode = iota
	// Recursive pins the named CID and, transitively, everything it
	// references.
	Recursive
	// Indirect marks a CID as reachable from some Recursive pin; it is
	// maintained automatically and is not requested directly.
	Indirect
)

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Recursive:
		return "recursive"
	case Indirect:
		return "indirect"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// letter returns the single-byte key-schema discriminator for m,
// matching the original store's "pin.<d|r|i>.<cid>" layout.
func (m Mode) letter() byte {
	switch m {
	case Direct:
		return 'd'
	case Recursive:
		return 'r'
	case Indirect:
		return 'i'
	default:
		panic(fmt.Sprintf("pin: invalid mode %d", int(m)))
	}
}

func modeFromLetter(b byte) (Mode, bool) {
	switch b {
	case 'd':
		return Direct, true
	case 'r':
		return Recursive, true
	case 'i':
		return Indirect, true
	default:
		return 0, false
	}
}

// Requirement filters List/Query results to a single Mode, or accepts
// every mode when nil.
type Requirement struct {
	mode *Mode
}

// Any accepts every pin mode.
func Any() Requirement { return Requirement{} }

// Only accepts exactly m.
func Only(m Mode) Requirement { return Requirement{mode: &m} }

func (r Requirement) matches(m Mode) bool {
	return r.mode == nil || *r.mode == m
}

// Kind is the result of Query: which mode a CID is pinned under, with
// the extra data that mode carries (Indirect names the recursive pin
// it descends from).
type Kind struct {
	Mode Mode
	// From is only meaningful when Mode == Indirect: the recursively
	// pinned CID this one is reachable from.
	From cid.Cid
}
