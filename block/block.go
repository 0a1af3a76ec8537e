// Package block implements the content-addressed byte container that
// every other package in this module builds on: an immutable pair of a
// CID and the bytes it names.
package block

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Block is an immutable (CID, bytes) pair. Two blocks are considered
// equal iff their CIDs are equal; the payload is never compared.
type Block struct {
	cid  cid.Cid
	data []byte
}

// NewBlock wraps data under the given CID without verifying that the
// CID's digest actually matches data. Use this only for trusted-origin
// blocks (e.g. ones this process itself just hashed); otherwise prefer
// Decode.
func NewBlock(c cid.Cid, data []byte) Block {
	return Block{cid: c, data: data}
}

// Decode validates that hashing data under c's multihash code
// reproduces c's digest, returning an error if it does not.
func Decode(c cid.Cid, data []byte) (Block, error) {
	prefix := c.Prefix()

	hashed, err := mh.Sum(data, prefix.MhType, prefix.MhLength)
	if err != nil {
		return Block{}, fmt.Errorf("block: hashing payload: %w", err)
	}

	if !bytes.Equal(hashed, []byte(c.Hash())) {
		return Block{}, fmt.Errorf("block: mismatched hash for %s", c)
	}

	return Block{cid: c, data: data}, nil
}

// Cid returns the block's content identifier.
func (b Block) Cid() cid.Cid { return b.cid }

// RawData returns the block's immutable byte payload. Callers must not
// mutate the returned slice.
func (b Block) RawData() []byte { return b.data }

// Defined reports whether b carries a valid CID.
func (b Block) Defined() bool { return b.cid.Defined() }

func (b Block) String() string {
	return fmt.Sprintf("[Block %s]", b.cid)
}
