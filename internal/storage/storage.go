package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond
)

// KeyValue represents a key-value pair for batch operations.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Option configures a Storage.
type Option func(*Storage)

// WithSyncWrites makes every write wait for the WAL to reach disk.
// Ledger records use it so an acknowledged transition survives a crash.
func WithSyncWrites() Option {
	return func(s *Storage) {
		s.writeOpts = pebble.Sync
	}
}

// WithSyncInterval overrides the background WAL sync period.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.syncInterval = d
		}
	}
}

// Storage provides a simple key-value store backed by Pebble.
// By default writes are non-blocking (NoSync) and a background goroutine
// periodically syncs the WAL to disk for durability.
type Storage struct {
	db           *pebble.DB           // db is the underlying Pebble database
	writeOpts    *pebble.WriteOptions // writeOpts is NoSync unless WithSyncWrites is set
	syncInterval time.Duration        // syncInterval is the background WAL sync period
	stopSync     chan struct{}        // stopSync signals the sync goroutine to stop
	wg           sync.WaitGroup
}

// New creates a new Storage instance at the given path.
// It starts a background goroutine that syncs the WAL periodically.
func New(path string, opts ...Option) (*Storage, error) {
	pebbleOpts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20), // 32 MB cache
		MemTableSize:                16 << 20,                  // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:           db,
		writeOpts:    pebble.NoSync,
		syncInterval: defaultSyncInterval,
		stopSync:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.startSyncLoop()

	return s, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Has reports whether the key exists.
func (s *Storage) Has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	closer.Close()

	return true, nil
}

// Set stores a key-value pair.
func (s *Storage) Set(key, value []byte) error {
	return s.db.Set(key, value, s.writeOpts)
}

// Delete removes a key from the store.
func (s *Storage) Delete(key []byte) error {
	return s.db.Delete(key, s.writeOpts)
}

// SetBatch atomically stores multiple key-value pairs.
// Either all pairs are written or none.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(s.writeOpts)
}

// DeleteBatch atomically removes multiple keys.
func (s *Storage) DeleteBatch(keys [][]byte) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, key := range keys {
		if err := batch.Delete(key, nil); err != nil {
			return err
		}
	}

	return batch.Commit(s.writeOpts)
}

// Iterate calls fn for each key-value pair in the database.
// If fn returns an error, iteration stops and the error is returned.
// Keys are visited in lexicographic order.
func (s *Storage) Iterate(fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	return visit(iter, fn)
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
// Uses Pebble's iterator bounds for efficient prefix scanning.
// The key and value slices are only valid until fn returns.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	return visit(iter, fn)
}

// visit walks an iterator from its first position.
func visit(iter *pebble.Iterator, fn func(key, value []byte) error) error {
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil // all 0xFF: unbounded
}

// Close stops the sync goroutine and closes the database.
// It performs a final sync before closing to ensure durability.
func (s *Storage) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (s *Storage) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Storage) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
