// Package ledger is the durable side of the registry boundary: an opaque
// append-only store keyed by hash. The registry commits each accepted state
// transition here before acknowledging it; composed proofs and their
// lineage land here for later audit without re-running verification.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

// ErrNotFound reports a missing entry.
var ErrNotFound = errors.New("ledger: entry not found")

// Store is the append-only commit interface the registry and the
// composition chain write through. Entries are keyed by hash and never
// rewritten.
type Store interface {
	// CommitState records a registry state snapshot under its registry
	// version and root hash. The pair is needed because roots recur
	// across registry generations (genesis and a post-reset registry
	// share the empty root). Re-committing the same key with identical
	// bytes is a no-op; differing bytes for an existing key are rejected.
	CommitState(root *big.Int, version int, snapshot []byte) error
	// StateAt returns the snapshot committed under a version and root.
	StateAt(root *big.Int, version int) ([]byte, error)
	// PutLineage records a composed proof under its lineage hash and
	// indexes it by entity key hash.
	PutLineage(lineageHash, entityKeyHash *big.Int, data []byte) error
	// Lineage returns the composed proof recorded under a lineage hash.
	Lineage(lineageHash *big.Int) ([]byte, error)
	// LineageHashesByEntity lists every lineage hash recorded for an
	// entity, in insertion-key order.
	LineageHashesByEntity(entityKeyHash *big.Int) ([]*big.Int, error)
	Close() error
}

// BadgerStore implements Store over a badger key-value database.
type BadgerStore struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) a badger-backed store at path.
func Open(path string, log zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", path, err)
	}
	return newBadgerStore(db, log), nil
}

// OpenInMemory opens an ephemeral store. Used by tests and local dev runs.
func OpenInMemory(log zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory ledger: %w", err)
	}
	return newBadgerStore(db, log), nil
}

func newBadgerStore(db *badger.DB, log zerolog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log.With().Str("component", "ledger").Logger()}
}

// DB exposes the underlying handle so other persisted tables (e.g. the
// layout registry) can share one database file.
func (s *BadgerStore) DB() *badger.DB { return s.db }

func stateKey(root *big.Int, version int) []byte {
	return []byte(fmt.Sprintf("state/%016x/%064x", version, root))
}

func lineageKey(h *big.Int) []byte {
	return []byte(fmt.Sprintf("lineage/%064x", h))
}

func entityIndexKey(entity, lineage *big.Int) []byte {
	return []byte(fmt.Sprintf("entity/%064x/%064x", entity, lineage))
}

func (s *BadgerStore) CommitState(root *big.Int, version int, snapshot []byte) error {
	key := stateKey(root, version)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			return item.Value(func(existing []byte) error {
				if !bytes.Equal(existing, snapshot) {
					return fmt.Errorf("ledger: conflicting snapshot for root %064x", root)
				}
				return nil
			})
		case errors.Is(err, badger.ErrKeyNotFound):
			return txn.Set(key, snapshot)
		default:
			return err
		}
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("root", fmt.Sprintf("0x%x", root)).Int("version", version).Msg("state committed")
	return nil
}

func (s *BadgerStore) StateAt(root *big.Int, version int) ([]byte, error) {
	return s.get(stateKey(root, version))
}

func (s *BadgerStore) PutLineage(lineageHash, entityKeyHash *big.Int, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(lineageKey(lineageHash), data); err != nil {
			return fmt.Errorf("ledger: put lineage: %w", err)
		}
		if err := txn.Set(entityIndexKey(entityKeyHash, lineageHash), nil); err != nil {
			return fmt.Errorf("ledger: index lineage by entity: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) Lineage(lineageHash *big.Int) ([]byte, error) {
	return s.get(lineageKey(lineageHash))
}

func (s *BadgerStore) LineageHashesByEntity(entityKeyHash *big.Int) ([]*big.Int, error) {
	prefix := []byte(fmt.Sprintf("entity/%064x/", entityKeyHash))
	var hashes []*big.Int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			hexPart := it.Item().Key()[len(prefix):]
			h, ok := new(big.Int).SetString(string(hexPart), 16)
			if !ok {
				return fmt.Errorf("ledger: malformed entity index key %q", it.Item().Key())
			}
			hashes = append(hashes, h)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }
