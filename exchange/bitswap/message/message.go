// Package message implements the Bitswap wire message: the protobuf
// payload exchanged under the /ipfs/bitswap* protocol identifiers.
//
// There is no .proto file checked into this module — the wire format
// is small and stable enough that it is hand-encoded with
// google.golang.org/protobuf/encoding/protowire, the same low-level
// varint/length-delimited primitives protoc-generated code itself
// calls into, without requiring a protoc/descriptor step.
package message

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vijayee/bitswap-core/block"
)

// DefaultMaxTransmitSize bounds a single serialized Message, per
// spec.md §6.
const DefaultMaxTransmitSize = 2 << 20 // 2 MiB

// BlockPresenceType distinguishes a positive HAVE announcement from a
// negative DONT_HAVE one (Bitswap 1.2.0 wire extension). The core
// carries these on the wire; the engine does not read or act on them.
type BlockPresenceType int32

const (
	Have BlockPresenceType = iota
	DontHave
)

// Entry is one wantlist row: a CID, its priority, and whether this
// entry is a want (Cancel == false) or a cancellation.
type Entry struct {
	Cid      cid.Cid
	Priority int32
	Cancel   bool
}

// BlockPresence is one blockPresences row (Bitswap 1.2.0).
type BlockPresence struct {
	Cid  cid.Cid
	Type BlockPresenceType
}

// Message is the unit of wire transmission: a wantlist delta, a set of
// full blocks, and any block-presence announcements.
type Message struct {
	full           bool
	wantlist       []Entry
	blocks         []block.Block
	blockPresences []BlockPresence
}

// New returns an empty message. full marks whether the wantlist it
// eventually carries is a complete replacement (true) or an
// incremental diff (false) — see spec.md §4.C's initial
// full-wantlist-on-connect transmission.
func New(full bool) *Message {
	return &Message{full: full}
}

// Full reports whether this message's wantlist entries replace the
// receiver's prior wantlist rather than patching it.
func (m *Message) Full() bool { return m.full }

// SetFull overrides the full flag.
func (m *Message) SetFull(full bool) { m.full = full }

// AddEntry appends a want for cid at priority.
func (m *Message) AddEntry(c cid.Cid, priority int32) {
	m.wantlist = append(m.wantlist, Entry{Cid: c, Priority: priority})
}

// AddCancel appends a cancellation for cid.
func (m *Message) AddCancel(c cid.Cid) {
	m.wantlist = append(m.wantlist, Entry{Cid: c, Cancel: true})
}

// AddBlock appends a full block to the payload.
func (m *Message) AddBlock(b block.Block) {
	m.blocks = append(m.blocks, b)
}

// AddBlockPresence appends a HAVE/DONT_HAVE announcement.
func (m *Message) AddBlockPresence(c cid.Cid, typ BlockPresenceType) {
	m.blockPresences = append(m.blockPresences, BlockPresence{Cid: c, Type: typ})
}

// Wantlist returns the message's want/cancel entries in the order they
// were added, or in sorted order once SortWantlist has been called.
func (m *Message) Wantlist() []Entry { return m.wantlist }

// Blocks returns the message's full blocks in the order they were
// added.
func (m *Message) Blocks() []block.Block { return m.blocks }

// BlockPresences returns the message's HAVE/DONT_HAVE announcements.
func (m *Message) BlockPresences() []BlockPresence { return m.blockPresences }

// Empty reports whether the message carries no wantlist entries, no
// blocks, and no presences — the condition under which Ledger.send()
// must return nil rather than an empty Message.
func (m *Message) Empty() bool {
	return len(m.wantlist) == 0 && len(m.blocks) == 0 && len(m.blockPresences) == 0
}

// SortWantlist orders entries the way spec.md §4.B prescribes for a
// reproducible send(): every cancel comes before every want, cancels
// keep their relative order, and wants are sorted by descending
// priority with ties broken by CID byte order.
func (m *Message) SortWantlist() {
	sort.SliceStable(m.wantlist, func(i, j int) bool {
		a, b := m.wantlist[i], m.wantlist[j]
		if a.Cancel != b.Cancel {
			// cancels sort before wants, per spec.md §4.B
			return a.Cancel
		}
		if a.Cancel {
			return false
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Cid.KeyString() < b.Cid.KeyString()
	})
}

const (
	fieldWantlist       = 1
	fieldBlocks         = 2
	fieldPayload        = 3
	fieldBlockPresences = 4

	wantlistFieldEntries = 1
	wantlistFieldFull    = 2

	entryFieldBlock    = 1
	entryFieldPriority = 2
	entryFieldCancel   = 3

	payloadFieldPrefix = 1
	payloadFieldData   = 2

	presenceFieldCid  = 1
	presenceFieldType = 2
)

// Marshal serializes m to its protobuf wire representation.
func (m *Message) Marshal() ([]byte, error) {
	var out []byte

	if len(m.wantlist) > 0 || m.full {
		wl := marshalWantlist(m)
		out = protowire.AppendTag(out, fieldWantlist, protowire.BytesType)
		out = protowire.AppendBytes(out, wl)
	}

	for _, b := range m.blocks {
		out = protowire.AppendTag(out, fieldBlocks, protowire.BytesType)
		out = protowire.AppendBytes(out, b.RawData())
	}

	for _, b := range m.blocks {
		payload := marshalPayloadBlock(b)
		out = protowire.AppendTag(out, fieldPayload, protowire.BytesType)
		out = protowire.AppendBytes(out, payload)
	}

	for _, bp := range m.blockPresences {
		presence := marshalPresence(bp)
		out = protowire.AppendTag(out, fieldBlockPresences, protowire.BytesType)
		out = protowire.AppendBytes(out, presence)
	}

	if len(out) > DefaultMaxTransmitSize {
		return nil, fmt.Errorf("message: marshaled size %d exceeds max transmit size %d", len(out), DefaultMaxTransmitSize)
	}

	return out, nil
}

func marshalWantlist(m *Message) []byte {
	var out []byte
	for _, e := range m.wantlist {
		entry := marshalEntry(e)
		out = protowire.AppendTag(out, wantlistFieldEntries, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	if m.full {
		out = protowire.AppendTag(out, wantlistFieldFull, protowire.VarintType)
		out = protowire.AppendVarint(out, 1)
	}
	return out
}

func marshalEntry(e Entry) []byte {
	var out []byte
	out = protowire.AppendTag(out, entryFieldBlock, protowire.BytesType)
	out = protowire.AppendBytes(out, e.Cid.Bytes())

	if e.Priority != 0 {
		out = protowire.AppendTag(out, entryFieldPriority, protowire.VarintType)
		out = protowire.AppendVarint(out, uint64(int64(e.Priority)))
	}

	if e.Cancel {
		out = protowire.AppendTag(out, entryFieldCancel, protowire.VarintType)
		out = protowire.AppendVarint(out, 1)
	}
	return out
}

func marshalPayloadBlock(b block.Block) []byte {
	var out []byte
	prefix := b.Cid().Prefix().Bytes()
	out = protowire.AppendTag(out, payloadFieldPrefix, protowire.BytesType)
	out = protowire.AppendBytes(out, prefix)
	out = protowire.AppendTag(out, payloadFieldData, protowire.BytesType)
	out = protowire.AppendBytes(out, b.RawData())
	return out
}

func marshalPresence(bp BlockPresence) []byte {
	var out []byte
	out = protowire.AppendTag(out, presenceFieldCid, protowire.BytesType)
	out = protowire.AppendBytes(out, bp.Cid.Bytes())
	out = protowire.AppendTag(out, presenceFieldType, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(bp.Type))
	return out
}

// Unmarshal parses the wire representation produced by Marshal into a
// fresh Message. Malformed input (truncated varints, unparsable CIDs)
// is reported as an error; per spec.md §7, the caller is expected to
// drop the offending message rather than treat this as fatal.
func Unmarshal(data []byte) (*Message, error) {
	if len(data) > DefaultMaxTransmitSize {
		return nil, fmt.Errorf("message: payload size %d exceeds max transmit size %d", len(data), DefaultMaxTransmitSize)
	}

	m := New(false)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case fieldWantlist:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			if err := unmarshalWantlist(m, v); err != nil {
				return nil, err
			}
		case fieldBlocks:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			// Legacy raw block bytes carry no CID; the codec/hash must
			// be supplied out of band. The core does not rely on this
			// field and only preserves position for forward parsing.
			_ = v
		case fieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			b, err := unmarshalPayloadBlock(v)
			if err != nil {
				return nil, err
			}
			m.blocks = append(m.blocks, b)
		case fieldBlockPresences:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
			bp, err := unmarshalPresence(v)
			if err != nil {
				return nil, err
			}
			m.blockPresences = append(m.blockPresences, bp)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	return m, nil
}

func unmarshalWantlist(m *Message, data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case wantlistFieldEntries:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			e, err := unmarshalEntry(v)
			if err != nil {
				return err
			}
			m.wantlist = append(m.wantlist, e)
		case wantlistFieldFull:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			m.full = v != 0
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func unmarshalEntry(data []byte) (Entry, error) {
	var e Entry
	var haveCid bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Entry{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case entryFieldBlock:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			data = data[n:]
			c, err := cid.Cast(v)
			if err != nil {
				return Entry{}, fmt.Errorf("message: invalid wantlist cid: %w", err)
			}
			e.Cid = c
			haveCid = true
		case entryFieldPriority:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			data = data[n:]
			e.Priority = int32(v)
		case entryFieldCancel:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			data = data[n:]
			e.Cancel = v != 0
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Entry{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if !haveCid {
		return Entry{}, fmt.Errorf("message: wantlist entry missing cid")
	}
	return e, nil
}

func unmarshalPayloadBlock(data []byte) (block.Block, error) {
	var prefix, payload []byte

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return block.Block{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case payloadFieldPrefix:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return block.Block{}, protowire.ParseError(n)
			}
			data = data[n:]
			prefix = v
		case payloadFieldData:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return block.Block{}, protowire.ParseError(n)
			}
			data = data[n:]
			payload = v
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return block.Block{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	pfx, err := cid.PrefixFromBytes(prefix)
	if err != nil {
		return block.Block{}, fmt.Errorf("message: invalid block prefix: %w", err)
	}
	c, err := pfx.Sum(payload)
	if err != nil {
		return block.Block{}, fmt.Errorf("message: hashing payload block: %w", err)
	}
	return block.NewBlock(c, payload), nil
}

func unmarshalPresence(data []byte) (BlockPresence, error) {
	var bp BlockPresence
	var haveCid bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return BlockPresence{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case presenceFieldCid:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return BlockPresence{}, protowire.ParseError(n)
			}
			data = data[n:]
			c, err := cid.Cast(v)
			if err != nil {
				return BlockPresence{}, fmt.Errorf("message: invalid presence cid: %w", err)
			}
			bp.Cid = c
			haveCid = true
		case presenceFieldType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return BlockPresence{}, protowire.ParseError(n)
			}
			data = data[n:]
			bp.Type = BlockPresenceType(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return BlockPresence{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if !haveCid {
		return BlockPresence{}, fmt.Errorf("message: block presence missing cid")
	}
	return bp, nil
}
