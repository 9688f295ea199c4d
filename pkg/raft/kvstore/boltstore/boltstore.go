// Package boltstore backs the Persistent Store Adapter with a single-file
// embedded database, giving the Raft core the fsync-on-write durability its
// contract requires.
package boltstore

import (
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/amirimatin/graphraft/pkg/raft/kvstore"
)

var bucketName = []byte("graphraft")

type store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bolt-backed Store at path. Every Put and
// Delete commits synchronously, so a successful call is durable before
// return.
func Open(path string) (kvstore.Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (s *store) Put(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, value)
	})
}

func (s *store) Delete(key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key)
	})
}

func (s *store) Close() error { return s.db.Close() }
