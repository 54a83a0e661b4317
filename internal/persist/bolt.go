package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const snapshotBucket = "snapshots"

// BoltStore keeps the latest msgpack-encoded snapshot per name in a
// single bbolt bucket.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Save encodes v and replaces the snapshot stored under name.
func (s *BoltStore) Save(ctx context.Context, name string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).Put([]byte(name), b)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Load decodes the snapshot stored under name into v.
func (s *BoltStore) Load(name string, v any) error {
	var b []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(snapshotBucket)).Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		// raw is only valid inside the transaction.
		b = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// Names lists every stored snapshot name.
func (s *BoltStore) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(snapshotBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
