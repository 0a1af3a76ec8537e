// Package dagpb decodes the two nested protobuf messages a UnixFS DAG
// node's raw block bytes carry: the merkledag PBNode envelope (links
// plus an opaque Data payload) and, inside that payload, the UnixFS
// Data message itself (type, inline bytes, and per-child block
// sizes).
//
// As with the Bitswap wire message, there is no .proto/protoc step:
// both messages are small, stable, and decoded directly with
// google.golang.org/protobuf/encoding/protowire.
package dagpb

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Link is one entry of a PBNode's Links list: the child's CID, an
// optional display name, and the cumulative size of the subtree it
// roots.
type Link struct {
	Cid  cid.Cid
	Name string
	// HasName records whether Name was present on the wire, since the
	// empty string is itself a valid link name (used throughout
	// UnixFS directories and HAMT buckets).
	HasName bool
	Tsize   uint64
}

// Node is a decoded merkledag PBNode: an ordered link list plus an
// opaque Data payload that a UnixFS-aware caller (see DecodeData)
// interprets further.
type Node struct {
	Links []Link
	Data  []byte
}

const (
	pbNodeFieldData  = 1
	pbNodeFieldLinks = 2

	pbLinkFieldHash  = 1
	pbLinkFieldName  = 2
	pbLinkFieldTsize = 3
)

// DecodeNode parses raw as a merkledag PBNode.
func DecodeNode(raw []byte) (Node, error) {
	var n Node

	for len(raw) > 0 {
		num, typ, size := protowire.ConsumeTag(raw)
		if size < 0 {
			return Node{}, protowire.ParseError(size)
		}
		raw = raw[size:]

		switch num {
		case pbNodeFieldData:
			v, size := protowire.ConsumeBytes(raw)
			if size < 0 {
				return Node{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			n.Data = v
		case pbNodeFieldLinks:
			v, size := protowire.ConsumeBytes(raw)
			if size < 0 {
				return Node{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			link, err := decodeLink(v)
			if err != nil {
				return Node{}, err
			}
			n.Links = append(n.Links, link)
		default:
			size := protowire.ConsumeFieldValue(num, typ, raw)
			if size < 0 {
				return Node{}, protowire.ParseError(size)
			}
			raw = raw[size:]
		}
	}

	return n, nil
}

func decodeLink(raw []byte) (Link, error) {
	var l Link
	var haveHash bool

	for len(raw) > 0 {
		num, typ, size := protowire.ConsumeTag(raw)
		if size < 0 {
			return Link{}, protowire.ParseError(size)
		}
		raw = raw[size:]

		switch num {
		case pbLinkFieldHash:
			v, size := protowire.ConsumeBytes(raw)
			if size < 0 {
				return Link{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			c, err := cid.Cast(v)
			if err != nil {
				return Link{}, fmt.Errorf("dagpb: invalid link hash: %w", err)
			}
			l.Cid = c
			haveHash = true
		case pbLinkFieldName:
			v, size := protowire.ConsumeBytes(raw)
			if size < 0 {
				return Link{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			l.Name = string(v)
			l.HasName = true
		case pbLinkFieldTsize:
			v, size := protowire.ConsumeVarint(raw)
			if size < 0 {
				return Link{}, protowire.ParseError(size)
			}
			raw = raw[size:]
			l.Tsize = v
		default:
			size := protowire.ConsumeFieldValue(num, typ, raw)
			if size < 0 {
				return Link{}, protowire.ParseError(size)
			}
			raw = raw[size:]
		}
	}

	if !haveHash {
		return Link{}, fmt.Errorf("dagpb: link missing hash")
	}
	return l, nil
}
