package blockstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltBucket = "sequences"

// BoltConfig holds the embedded store location.
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// BoltStore keeps named counters in a bbolt bucket. bbolt takes an exclusive
// file lock on open, so a second process cannot share the file.
type BoltStore struct {
	db   *bolt.DB
	path string
	key  []byte
}

// NewBoltStore opens (creating if needed) the bbolt file and its bucket.
func NewBoltStore(cfg BoltConfig, name string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: cfg.Path, Err: err}
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &StorageError{Op: "open", Path: cfg.Path, Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, &StorageError{Op: "create bucket", Path: cfg.Path, Err: err}
	}

	return &BoltStore{db: db, path: cfg.Path, key: []byte(name)}, nil
}

func (s *BoltStore) ReserveBlock(ctx context.Context, increment uint64) (uint64, error) {
	if increment == 0 {
		return 0, ErrInvalidIncrement
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var bound uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(boltBucket))
		current, err := decodeCounter(b.Get(s.key))
		if err != nil {
			return err
		}
		next, err := advance(current, increment)
		if err != nil {
			return err
		}
		if err := b.Put(s.key, encodeCounter(next)); err != nil {
			return err
		}
		bound = next
		return nil
	})
	if err != nil {
		return 0, &StorageError{Op: "reserve", Path: s.path, Err: err}
	}
	return bound, nil
}

// Current reads the counter without advancing it.
func (s *BoltStore) Current(ctx context.Context) (uint64, error) {
	var v uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		v, err = decodeCounter(tx.Bucket([]byte(boltBucket)).Get(s.key))
		return err
	})
	if err != nil {
		return 0, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	return v, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
