// Package store is the pebble-backed key/value layer that keeps portal
// sessions and per-user chat activity.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"wolfie/pkg/logger"
	"wolfie/pkg/telemetry"

	"github.com/cockroachdb/pebble"
)

// ErrNotOpen is returned by every call on a closed store.
var ErrNotOpen = errors.New("pebble not opened; call store.Open first")

// Options configures Open.
type Options struct {
	// DisableWAL trades durability for write speed.
	DisableWAL bool
}

// Store wraps one pebble database.
type Store struct {
	mu   sync.RWMutex
	db   *pebble.DB
	path string
	wal  bool
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{DisableWAL: opts.DisableWAL})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open store: %w", err)
	}
	if opts.DisableWAL {
		logger.Warn("durability_disabled", "durability", "no WAL enabled")
	}
	return &Store{db: db, path: path, wal: !opts.DisableWAL}, nil
}

// Close closes the database. Calling it twice is harmless.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Ready reports whether the database is open.
func (s *Store) Ready() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

// Path returns the directory the database lives in.
func (s *Store) Path() string { return s.path }

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func (s *Store) writeOpt() *pebble.WriteOptions {
	if s.wal {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Get returns a copy of the value stored at key.
func (s *Store) Get(key string) ([]byte, error) {
	tr := telemetry.Track("store.get")
	defer tr.Finish()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotOpen
	}
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if IsNotFound(err) {
			logger.Debug("get_key_missing", "key", key)
		} else {
			logger.Error("get_key_failed", "key", key, "error", err)
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// Put stores value at key.
func (s *Store) Put(key string, value []byte) error {
	tr := telemetry.Track("store.put")
	defer tr.Finish()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotOpen
	}
	if err := s.db.Set([]byte(key), value, s.writeOpt()); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("save_key_ok", "key", key, "len", len(value))
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotOpen
	}
	if err := s.db.Delete([]byte(key), s.writeOpt()); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	logger.Debug("delete_key_ok", "key", key)
	return nil
}

// DeleteKeys removes keys in one batch.
func (s *Store) DeleteKeys(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotOpen
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		if err := b.Delete([]byte(k), nil); err != nil {
			return err
		}
	}
	if err := b.Commit(s.writeOpt()); err != nil {
		logger.Error("pebble_apply_batch_failed", "error", err)
		return err
	}
	return nil
}

// Scan calls fn for every key with prefix in key order. fn receives copies.
// Returning an error from fn stops the scan and is returned.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	tr := telemetry.Track("store.scan")
	defer tr.Finish()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrNotOpen
	}
	pfx := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: pfx, UpperBound: upperBound(pfx)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := string(iter.Key())
		v := append([]byte(nil), iter.Value()...)
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return iter.Error()
}

// upperBound returns the smallest key greater than every key with prefix,
// or nil when there is none.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// GetJSON decodes the value at key into v.
func (s *Store) GetJSON(key string, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it at key.
func (s *Store) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(key, data)
}
