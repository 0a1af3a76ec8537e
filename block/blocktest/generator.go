// Package blocktest generates throwaway blocks for tests, mirroring
// the teacher's blocksutil.BlockGenerator.
package blocktest

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/vijayee/bitswap-core/block"
)

// Generator produces sequentially-seeded, distinct blocks.
type Generator struct {
	seq int
}

// NewGenerator returns a Generator starting at seed 0.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns a freshly hashed block containing a unique payload.
func (g *Generator) Next() block.Block {
	g.seq++
	data := []byte(fmt.Sprintf("block-%d", g.seq))
	return FromData(data)
}

// Blocks returns n distinct blocks.
func (g *Generator) Blocks(n int) []block.Block {
	out := make([]block.Block, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

// FromData hashes data with sha2-256 and returns the resulting block.
func FromData(data []byte) block.Block {
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	c := cid.NewCidV1(cid.Raw, hash)
	return block.NewBlock(c, data)
}
