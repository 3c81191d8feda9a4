package layout

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"
)

// mappingRecord is the persisted form of one (documentType, fieldName) →
// slot assignment.
type mappingRecord struct {
	Slot    int `cbor:"1,keyasint"`
	Version int `cbor:"2,keyasint"`
}

// Store persists layout slot assignments as an append-only table. An
// existing mapping for a live document type can never be changed (that
// would invalidate historical proofs); only new fields on unused slots may
// be appended.
type Store struct {
	db *badger.DB
}

// NewStore wraps a badger handle. The caller owns the handle's lifecycle.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func mappingKey(docType, fieldName string) []byte {
	return []byte(fmt.Sprintf("layout/%s/%s", docType, fieldName))
}

// Register appends every field mapping of the layout. Fields already
// persisted must carry the identical slot; a conflicting slot is rejected
// for the whole batch before anything is written.
func (s *Store) Register(l *DocumentLayout) error {
	if err := l.Validate(); err != nil {
		return err
	}

	// Occupied slots for this document type, to reject new fields landing
	// on a slot another field already owns.
	occupied := make(map[int]string)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(fmt.Sprintf("layout/%s/", l.Type))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(prefix):])
			var rec mappingRecord
			if err := item.Value(func(v []byte) error { return cbor.Unmarshal(v, &rec) }); err != nil {
				return fmt.Errorf("decode mapping %s: %w", item.Key(), err)
			}
			occupied[rec.Slot] = name
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, f := range l.Fields {
			key := mappingKey(l.Type, f.Name)
			item, err := txn.Get(key)
			switch {
			case err == nil:
				var rec mappingRecord
				if err := item.Value(func(v []byte) error { return cbor.Unmarshal(v, &rec) }); err != nil {
					return fmt.Errorf("decode mapping %s/%s: %w", l.Type, f.Name, err)
				}
				if rec.Slot != f.Slot {
					return fmt.Errorf("layout %s: field %s already mapped to slot %d, remap to %d forbidden", l.Type, f.Name, rec.Slot, f.Slot)
				}
			case errors.Is(err, badger.ErrKeyNotFound):
				if owner, taken := occupied[f.Slot]; taken && owner != f.Name {
					return fmt.Errorf("layout %s: slot %d already owned by %s", l.Type, f.Slot, owner)
				}
				v, err := cbor.Marshal(mappingRecord{Slot: f.Slot, Version: l.Version})
				if err != nil {
					return fmt.Errorf("encode mapping %s/%s: %w", l.Type, f.Name, err)
				}
				if err := txn.Set(key, v); err != nil {
					return fmt.Errorf("persist mapping %s/%s: %w", l.Type, f.Name, err)
				}
				occupied[f.Slot] = f.Name
			default:
				return fmt.Errorf("read mapping %s/%s: %w", l.Type, f.Name, err)
			}
		}
		return nil
	})
}

// Slot resolves the persisted slot index for a field, or false if no
// mapping exists.
func (s *Store) Slot(docType, fieldName string) (int, bool, error) {
	var rec mappingRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(mappingKey(docType, fieldName))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return cbor.Unmarshal(v, &rec) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s/%s: %w", docType, fieldName, err)
	}
	return rec.Slot, true, nil
}
