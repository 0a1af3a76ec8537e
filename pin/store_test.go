package pin

import (
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/vijayee/bitswap-core/block/blocktest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestInsertDirectPinIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	c := blocktest.NewGenerator().Next().Cid()

	require.NoError(t, s.InsertDirectPin(c))
	require.NoError(t, s.InsertDirectPin(c))

	pinned, err := s.IsPinned(c)
	require.NoError(t, err)
	require.True(t, pinned)
}

func TestDirectPinConflictsWithRecursivePin(t *testing.T) {
	s := openTestStore(t)
	c := blocktest.NewGenerator().Next().Cid()

	require.NoError(t, s.InsertRecursivePin(c, nil))
	require.ErrorIs(t, s.InsertDirectPin(c), ErrAlreadyPinnedRecursively)
}

func TestRecursivePinMarksReferencedAsIndirect(t *testing.T) {
	s := openTestStore(t)
	gen := blocktest.NewGenerator()
	root := gen.Next().Cid()
	children := []cid.Cid{gen.Next().Cid(), gen.Next().Cid()}

	require.NoError(t, s.InsertRecursivePin(root, children))

	for _, c := range children {
		results, err := s.Query([]cid.Cid{c}, Any())
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, Indirect, results[0].Kind.Mode)
		require.Equal(t, root, results[0].Kind.From)
	}
}

func TestIndirectPinIsSupersededByDirectPin(t *testing.T) {
	s := openTestStore(t)
	gen := blocktest.NewGenerator()
	root := gen.Next().Cid()
	child := gen.Next().Cid()

	require.NoError(t, s.InsertRecursivePin(root, []cid.Cid{child}))
	require.NoError(t, s.InsertDirectPin(child))

	results, err := s.Query([]cid.Cid{child}, Any())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, Direct, results[0].Kind.Mode)
}

func TestRemoveDirectPinRejectsUnpinned(t *testing.T) {
	s := openTestStore(t)
	c := blocktest.NewGenerator().Next().Cid()

	require.ErrorIs(t, s.RemoveDirectPin(c), ErrNotPinned)
}

func TestRemoveDirectPinRejectsIndirectlyPinned(t *testing.T) {
	s := openTestStore(t)
	gen := blocktest.NewGenerator()
	root := gen.Next().Cid()
	child := gen.Next().Cid()
	require.NoError(t, s.InsertRecursivePin(root, []cid.Cid{child}))

	require.ErrorIs(t, s.RemoveDirectPin(child), ErrNotPinned)
}

func TestRemoveRecursivePinClearsIndirectDependents(t *testing.T) {
	s := openTestStore(t)
	gen := blocktest.NewGenerator()
	root := gen.Next().Cid()
	child := gen.Next().Cid()
	require.NoError(t, s.InsertRecursivePin(root, []cid.Cid{child}))

	require.NoError(t, s.RemoveRecursivePin(root, []cid.Cid{child}))

	pinned, err := s.IsPinned(root)
	require.NoError(t, err)
	require.False(t, pinned)

	pinned, err = s.IsPinned(child)
	require.NoError(t, err)
	require.False(t, pinned)
}

func TestListFiltersByRequirement(t *testing.T) {
	s := openTestStore(t)
	gen := blocktest.NewGenerator()
	direct := gen.Next().Cid()
	recursive := gen.Next().Cid()

	require.NoError(t, s.InsertDirectPin(direct))
	require.NoError(t, s.InsertRecursivePin(recursive, nil))

	entries, err := s.List(Only(Direct))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, direct, entries[0].Cid)

	all, err := s.List(Any())
	require.NoError(t, err)
	require.Len(t, all, 2)
}
