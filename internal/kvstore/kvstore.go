// Package kvstore stores document bytes keyed by internal id and persists
// a monotonic sequence number alongside them, backed by go.etcd.io/bbolt:
// a single embedded file, opened once, closed on release.
package kvstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound reports a missing key. Callers should use errors.Is.
var ErrNotFound = errors.New("kvstore: not found")

var (
	docsBucket = []byte("docs")
	metaBucket = []byte("meta")
	snKey      = []byte("sn")
)

// Store wraps a single bbolt database file for one partition.
type Store struct {
	db   *bolt.DB
	path string
}

// Open creates (if needed) and opens the bbolt database at
// <dir>/kv.bbolt, ensuring both buckets exist.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, "kv.bbolt")

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists(docsBucket)
		if bucketErr != nil {
			return bucketErr
		}

		_, bucketErr = tx.CreateBucketIfNotExists(metaBucket)

		return bucketErr
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("kvstore: init buckets: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Get returns the document bytes stored under iid, or ErrNotFound.
func (s *Store) Get(iid []byte) ([]byte, error) {
	var out []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(docsBucket).Get(iid)
		if v == nil {
			return ErrNotFound
		}

		out = append(out, v...) // copy: v is only valid within the txn

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Put writes doc bytes under iid, creating or overwriting the record.
func (s *Store) Put(iid, doc []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBucket).Put(iid, doc)
	})
	if err != nil {
		return fmt.Errorf("kvstore: put: %w", err)
	}

	return nil
}

// Delete removes the record at iid. Deleting an absent key is not an error.
func (s *Store) Delete(iid []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBucket).Delete(iid)
	})
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}

	return nil
}

// Flush forces a durability point. bbolt fsyncs on every committed
// read-write transaction, so an empty writable transaction is enough to
// guarantee the fsync the spec's flush() assumes.
func (s *Store) Flush() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvstore: flush: %w", err)
	}

	return nil
}

// WriteSN persists the coordinator-authored sequence number. It is the
// only scalar the coordinator writes into this store's on-disk layout.
func (s *Store) WriteSN(sn uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sn)

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(snKey, buf[:])
	})
	if err != nil {
		return fmt.Errorf("kvstore: write sn: %w", err)
	}

	return nil
}

// GetSN returns the last persisted sequence number, or 0 if none has ever
// been written.
func (s *Store) GetSN() (uint64, error) {
	var sn uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(snKey)
		if v == nil {
			return nil
		}

		sn = binary.BigEndian.Uint64(v)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("kvstore: get sn: %w", err)
	}

	return sn, nil
}

// Count returns the number of stored documents. bbolt's bucket stats are
// exact for a B+tree, unlike the estimate the spec allows for, but callers
// should still treat it as an estimate per the KV adapter's contract.
func (s *Store) Count() (uint64, error) {
	var n uint64

	err := s.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(docsBucket).Stats().KeyN)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("kvstore: count: %w", err)
	}

	return n, nil
}

// Release closes the underlying bbolt handle. Safe to call once; the
// coordinator guarantees Release runs only after the adapter is no longer
// in use (role transition to follower, or Engine.Release).
func (s *Store) Release() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	if err != nil {
		return fmt.Errorf("kvstore: release: %w", err)
	}

	return nil
}
