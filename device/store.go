package device

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	bucketName  = "device"
	identityKey = "identity"
)

// Store persists one device identity per profile in a BBolt database.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the identity database at the given path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening device db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Identity returns the stored identity, creating one with the given label
// on first use. Once created the identity is immutable; later calls ignore
// the label argument.
func (s *Store) Identity(label string) (Identity, error) {
	var id Identity
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		if data := b.Get([]byte(identityKey)); data != nil {
			return json.Unmarshal(data, &id)
		}
		id, err = NewIdentity(label)
		if err != nil {
			return err
		}
		data, err := json.Marshal(id)
		if err != nil {
			return err
		}
		return b.Put([]byte(identityKey), data)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("loading device identity: %w", err)
	}
	return id, nil
}
