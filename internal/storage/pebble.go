// Package storage provides the durable key-value layer backing the
// mempool's nonce tracking and the execution sandbox's state writes. It is not
// grounded on any single teacher file (the retrieval pack's storage
// package was never included); it is written directly against
// cockroachdb/pebble, the engine tools.go already declares as a build
// dependency.
package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound names the absent-key condition. Get does not return it: an
// absent key reads as a nil value with a nil error.
var ErrNotFound = errors.New("storage: key not found")

// StateStore is the minimal key-value contract the mempool and node need:
// point reads, point writes, ordered iteration for recovery, and batched
// application of an execution result's write set.
type StateStore interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte, fn func(key, value []byte) error) error
	ApplyWriteSet(writes map[string][]byte) error
	Close() error
}

// PebbleStore is a StateStore backed by a local pebble instance.
type PebbleStore struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble database at dir.
func Open(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Get looks up key, returning nil, nil if it is absent. The returned
// slice is a copy, safe to retain past the pebble read's lifetime.
func (s *PebbleStore) Get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, closer.Close()
}

// Set writes key/value, durable after the call returns.
func (s *PebbleStore) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.Sync)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *PebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// Iterate walks every key with the given prefix in ascending order,
// calling fn for each. It stops and returns fn's error if fn fails.
func (s *PebbleStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	upper := upperBound(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ApplyWriteSet writes every key/value pair in a single pebble batch,
// synced once on commit rather than once per key.
func (s *PebbleStore) ApplyWriteSet(writes map[string][]byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for k, v := range writes {
		if err := batch.Set([]byte(k), v, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// Close releases the underlying pebble handle.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// upperBound returns the smallest byte slice strictly greater than every
// slice with the given prefix, bounding a prefix scan.
func upperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff, unbounded
}
