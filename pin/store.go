package pin

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("pin")

// ErrAlreadyPinnedRecursively is returned by InsertDirectPin when the
// target is already covered by a recursive pin: a direct pin would be
// redundant and the original store treats it as a conflict rather
// than silently upgrading.
var ErrAlreadyPinnedRecursively = errors.New("pin: already pinned recursively")

// ErrNotPinned is returned by the Remove* operations when the target
// is not pinned at all, or is only pinned indirectly (as someone
// else's dependency, which Remove* has no authority to clear).
var ErrNotPinned = errors.New("pin: not pinned directly or recursively")

// maxConflictRetries bounds how many times a transaction is retried
// after badger reports a write conflict, standing in for the
// original store's transaction engine automatically re-running the
// closure until it commits cleanly.
const maxConflictRetries = 16

// Store is the transactional pin store described in spec.md §3/§4.D:
// which CIDs are pinned, under which Mode, backed by a single badger
// database. All mutating operations run inside a retried
// read-modify-write transaction so concurrent callers never observe
// or produce an inconsistent Direct/Recursive/Indirect state.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a badger database at path and wraps
// it as a Store.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogAdapter{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("pin: opening store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open badger database, letting the caller
// share one database across multiple stores/namespaces.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func updateWithRetry(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("pin: transaction did not commit after %d conflict retries: %w", maxConflictRetries, err)
}

// getPinnedMode reports the Mode target is currently pinned under, if
// any, checked in Direct, Recursive, Indirect order so the first match
// wins — a CID is never stored under more than one mode at once.
func getPinnedMode(txn *badger.Txn, target cid.Cid) (mode Mode, key []byte, found bool, err error) {
	for _, m := range []Mode{Direct, Recursive, Indirect} {
		k := pinKey(target, m)
		_, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return 0, nil, false, fmt.Errorf("pin: reading %s: %w", k, err)
		}
		return m, k, true, nil
	}
	return 0, nil, false, nil
}

// IsPinned reports whether target is pinned under any mode.
func (s *Store) IsPinned(target cid.Cid) (bool, error) {
	var pinned bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, _, found, err := getPinnedMode(txn, target)
		pinned = found
		return err
	})
	return pinned, err
}

// InsertDirectPin pins target directly. It is a no-op if target is
// already pinned directly, replaces an existing indirect record (a
// direct pin supersedes incidental reachability), and fails with
// ErrAlreadyPinnedRecursively if target is already covered by a
// recursive pin.
func (s *Store) InsertDirectPin(target cid.Cid) error {
	return updateWithRetry(s.db, func(txn *badger.Txn) error {
		mode, key, found, err := getPinnedMode(txn, target)
		if err != nil {
			return err
		}
		if found {
			switch mode {
			case Direct:
				return nil
			case Recursive:
				return ErrAlreadyPinnedRecursively
			case Indirect:
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return txn.Set(pinKey(target, Direct), nil)
	})
}

// InsertRecursivePin pins target recursively and marks every CID in
// referenced as indirectly pinned through target, unless a referenced
// CID is already pinned under some mode (direct, recursive, or an
// earlier indirect record all take precedence).
func (s *Store) InsertRecursivePin(target cid.Cid, referenced []cid.Cid) error {
	return updateWithRetry(s.db, func(txn *badger.Txn) error {
		mode, key, found, err := getPinnedMode(txn, target)
		if err != nil {
			return err
		}
		if found {
			if mode == Recursive {
				return nil
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		if err := txn.Set(pinKey(target, Recursive), nil); err != nil {
			return err
		}

		indirectValue := []byte(target.String())
		for _, c := range referenced {
			_, _, alreadyPinned, err := getPinnedMode(txn, c)
			if err != nil {
				return err
			}
			if alreadyPinned {
				continue
			}
			if err := txn.Set(pinKey(c, Indirect), indirectValue); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveDirectPin clears target's direct pin. It fails with
// ErrNotPinned if target is not pinned at all, or is pinned only
// indirectly.
func (s *Store) RemoveDirectPin(target cid.Cid) error {
	return updateWithRetry(s.db, func(txn *badger.Txn) error {
		mode, _, found, err := getPinnedMode(txn, target)
		if err != nil {
			return err
		}
		if !found || mode == Indirect {
			return ErrNotPinned
		}
		return txn.Delete(pinKey(target, Direct))
	})
}

// RemoveRecursivePin clears target's recursive pin and, for every CID
// in referenced that is currently pinned indirectly, clears that
// indirect record too, whichever recursive pin the record names;
// referenced CIDs pinned directly or recursively are left alone. It
// fails with ErrNotPinned the same way RemoveDirectPin does.
func (s *Store) RemoveRecursivePin(target cid.Cid, referenced []cid.Cid) error {
	return updateWithRetry(s.db, func(txn *badger.Txn) error {
		mode, _, found, err := getPinnedMode(txn, target)
		if err != nil {
			return err
		}
		if !found || mode == Indirect {
			return ErrNotPinned
		}

		if err := txn.Delete(pinKey(target, Recursive)); err != nil {
			return err
		}

		for _, c := range referenced {
			m, key, found, err := getPinnedMode(txn, c)
			if err != nil {
				return err
			}
			if !found || m != Indirect {
				continue
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Entry is one row of a List result.
type Entry struct {
	Cid  cid.Cid
	Mode Mode
}

// List returns every pin matching req, in key order.
func (s *Store) List(req Requirement) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			c, mode, err := parsePinKey(key)
			if err != nil {
				log.Warnf("skipping malformed pin key: %v", err)
				continue
			}
			if !req.matches(mode) {
				continue
			}
			out = append(out, Entry{Cid: c, Mode: mode})
		}
		return nil
	})
	return out, err
}

// QueryResult is one row of a Query result.
type QueryResult struct {
	Cid  cid.Cid
	Kind Kind
}

// Query reports, for each of ids, the Kind it is pinned under (and
// silently omits CIDs that are unpinned or don't satisfy req).
func (s *Store) Query(ids []cid.Cid, req Requirement) ([]QueryResult, error) {
	var out []QueryResult
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			mode, key, found, err := getPinnedMode(txn, id)
			if err != nil {
				return err
			}
			if !found || !req.matches(mode) {
				continue
			}

			kind := Kind{Mode: mode}
			if mode == Indirect {
				item, err := txn.Get(key)
				if err != nil {
					return fmt.Errorf("pin: reading indirect source for %s: %w", id, err)
				}
				value, err := item.ValueCopy(nil)
				if err != nil {
					return fmt.Errorf("pin: reading indirect source for %s: %w", id, err)
				}
				from, err := cid.Decode(string(value))
				if err != nil {
					return fmt.Errorf("pin: invalid indirect source for %s: %w", id, err)
				}
				kind.From = from
			}

			out = append(out, QueryResult{Cid: id, Kind: kind})
		}
		return nil
	})
	return out, err
}

// badgerLogAdapter routes badger's internal logging through go-log/v2
// so the pin store's diagnostics show up in the same structured log
// stream as the rest of this module, instead of badger's default
// stderr logger.
type badgerLogAdapter struct{}

func (badgerLogAdapter) Errorf(f string, args ...interface{})   { log.Errorf(f, args...) }
func (badgerLogAdapter) Warningf(f string, args ...interface{}) { log.Warnf(f, args...) }
func (badgerLogAdapter) Infof(f string, args ...interface{})    { log.Infof(f, args...) }
func (badgerLogAdapter) Debugf(f string, args ...interface{})   { log.Debugf(f, args...) }
