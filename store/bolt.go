package store

import (
	"fmt"
	"time"

	"github.com/boltdb/bolt"
)

var pluginBucket = []byte("plugins")

// BoltStore persists plugin records in a single bucket of a Bolt database.
// Bolt serializes writers internally, which satisfies the concurrent
// distinct-id requirement.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the database file and ensures the
// plugin bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pluginBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt store: init bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Save implements Store. The returned location is "<db path>#<id>".
func (s *BoltStore) Save(id string, data []byte) (string, error) {
	if id == "" {
		return "", fmt.Errorf("bolt store: empty plugin id")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pluginBucket).Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("bolt store: save %s: %w", id, err)
	}
	return fmt.Sprintf("%s#%s", s.db.Path(), id), nil
}

// Load implements Store.
func (s *BoltStore) Load(id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(pluginBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete implements Store.
func (s *BoltStore) Delete(id string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pluginBucket)
		if b.Get([]byte(id)) == nil {
			return nil
		}
		existed = true
		return b.Delete([]byte(id))
	})
	if err != nil {
		return false, fmt.Errorf("bolt store: delete %s: %w", id, err)
	}
	return existed, nil
}

// Exists implements Store.
func (s *BoltStore) Exists(id string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(pluginBucket).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}
