// Package engine is the storage engine: a capacity-bounded LRU map with
// dirty tracking, periodic full-snapshot checkpoints and recovery of
// evicted keys from the last snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blinkdb/internal/logging"
	"blinkdb/internal/store"
)

const (
	DefaultCapacity           = 10000
	DefaultCheckpointInterval = 10 * time.Second
)

var ErrInvalidCapacity = errors.New("capacity must be positive")

var logger = logging.For("engine")

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Capacity           int
	CheckpointInterval time.Duration
}

// Stats is a point-in-time view of the engine counters.
type Stats struct {
	Resident             int       `json:"resident"`
	Evicted              int       `json:"evicted"`
	Capacity             int       `json:"capacity"`
	Dirty                bool      `json:"dirty"`
	Evictions            uint64    `json:"evictions"`
	UnpersistedEvictions uint64    `json:"unpersisted_evictions"`
	Recoveries           uint64    `json:"recoveries"`
	RecoveryMisses       uint64    `json:"recovery_misses"`
	Flushes              uint64    `json:"flushes"`
	FlushFailures        uint64    `json:"flush_failures"`
	LastFlush            time.Time `json:"last_flush,omitzero"`
}

// Engine is safe for concurrent use. Writers hold the exclusive lock for
// their whole critical section; Get starts shared and upgrades to
// exclusive for promotion, re-reading the map after the upgrade.
type Engine struct {
	mu       sync.RWMutex
	lru      recency
	evicted  map[string]uint64 // key → version at which it was evicted
	dirty    bool
	version  uint64 // bumped on every mutation of the resident set
	onDisk   uint64 // version captured by the last completed snapshot
	capacity int
	stats    Stats

	interval time.Duration
	st       store.Store
	flushMu  sync.Mutex // one snapshot write at a time

	closeOnce sync.Once
	closeErr  error
}

// Open creates an engine over st and loads the current snapshot. A
// snapshot that cannot be read is logged and the engine starts empty.
func Open(st store.Store, opts Options) (*Engine, error) {
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, opts.Capacity)
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = DefaultCheckpointInterval
	}

	e := &Engine{
		lru:      newRecency(opts.Capacity),
		evicted:  make(map[string]uint64),
		capacity: opts.Capacity,
		interval: opts.CheckpointInterval,
		st:       st,
	}
	e.load()
	return e, nil
}

func (e *Engine) load() {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.st.ForEach(func(rec store.Record) error {
		if idx, ok := e.lru.lookup(rec.Key); ok {
			e.lru.slots[idx].value = rec.Value
			e.lru.promote(idx)
			return nil
		}
		e.lru.insertFront(rec.Key, rec.Value, 0)
		return nil
	})
	if err != nil {
		logger.Warn("snapshot unreadable, starting empty", "err", err)
		e.lru.reset()
		return
	}
	// A snapshot taken with a larger capacity is trimmed like any overflow.
	e.evictOverflow()
	logger.Info("snapshot loaded", "resident", e.lru.len(), "capacity", e.capacity)
}

// Set stores value under key as the most recently used record, evicting
// the least recently used record when the capacity is exceeded.
func (e *Engine) Set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.version++
	if idx, ok := e.lru.lookup(key); ok {
		s := &e.lru.slots[idx]
		s.value = value
		s.rev = e.version
		e.lru.promote(idx)
	} else {
		e.lru.insertFront(key, value, e.version)
		delete(e.evicted, key)
	}
	e.dirty = true
	e.evictOverflow()
}

// Get returns the value for key and marks it most recently used. An
// evicted key is looked up in the snapshot and made resident again.
func (e *Engine) Get(key string) (string, bool) {
	e.mu.RLock()
	_, resident := e.lru.lookup(key)
	_, evicted := e.evicted[key]
	e.mu.RUnlock()

	if !resident && !evicted {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The map may have changed between the two acquisitions; act on what
	// is there now.
	idx, ok := e.lru.lookup(key)
	if !ok {
		if _, still := e.evicted[key]; !still {
			return "", false
		}
		if idx, ok = e.recover(key); !ok {
			return "", false
		}
	}
	e.lru.promote(idx)
	return e.lru.slots[idx].value, true
}

// Del removes a resident key. Evicted keys are reported as absent and
// stay recoverable.
func (e *Engine) Del(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.lru.lookup(key)
	if !ok {
		return false
	}
	e.version++
	e.lru.remove(idx)
	e.dirty = true
	return true
}

// Len returns the number of resident records.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lru.len()
}

// Dirty reports whether there are mutations not yet in a snapshot.
func (e *Engine) Dirty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dirty
}

// Stats returns a copy of the counters with the current sizes filled in.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.stats
	s.Resident = e.lru.len()
	s.Evicted = len(e.evicted)
	s.Capacity = e.capacity
	s.Dirty = e.dirty
	return s
}

// recover runs the snapshot lookup for an evicted key. Caller holds the
// exclusive lock.
func (e *Engine) recover(key string) (int32, bool) {
	value, found, err := e.st.Find(key)
	if err != nil {
		// Leave the key marked so a later Get can retry.
		logger.Warn("recovery scan failed", "key", key, "err", err)
		return nilSlot, false
	}
	if !found {
		// A snapshot in flight may still contain the key; the next
		// completed Flush retires the mark.
		e.stats.RecoveryMisses++
		logger.Debug("evicted key not in snapshot", "key", key)
		return nilSlot, false
	}

	delete(e.evicted, key)
	idx := e.lru.insertFront(key, value, 0)
	e.stats.Recoveries++
	e.evictOverflow()
	return idx, true
}

// evictOverflow removes least recently used records until the capacity
// holds. Every caller adds at most one record, so this loops at most once.
func (e *Engine) evictOverflow() {
	for e.lru.len() > e.capacity {
		e.version++
		victim := e.lru.remove(e.lru.tail)
		e.evicted[victim.key] = e.version
		e.dirty = true
		e.stats.Evictions++
		if victim.rev > e.onDisk {
			e.stats.UnpersistedEvictions++
			logger.Debug("evicted key has no completed snapshot", "key", victim.key)
		}
	}
}

// Flush writes every resident record to the store, least recently used
// first, replacing the previous snapshot. The records are copied under
// the shared lock and written without holding it.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.RLock()
	records := make([]store.Record, 0, e.lru.len())
	for idx := e.lru.tail; idx != nilSlot; idx = e.lru.slots[idx].prev {
		s := &e.lru.slots[idx]
		records = append(records, store.Record{Key: s.key, Value: s.value})
	}
	version := e.version
	e.mu.RUnlock()

	if err := e.st.WriteSnapshot(records); err != nil {
		e.mu.Lock()
		e.stats.FlushFailures++
		e.mu.Unlock()
		return fmt.Errorf("writing snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDisk = version
	if e.version == version {
		e.dirty = false
	}
	// Keys evicted before the copy are not in the new snapshot.
	for key, at := range e.evicted {
		if at <= version {
			delete(e.evicted, key)
		}
	}
	e.stats.Flushes++
	e.stats.LastFlush = time.Now()
	logger.Debug("snapshot written", "records", len(records))
	return nil
}

// Run is the checkpoint task: every interval it flushes if the engine is
// dirty. It returns when ctx is cancelled; the final flush belongs to Close.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.Dirty() {
				continue
			}
			if err := e.Flush(); err != nil {
				logger.Warn("checkpoint failed, retrying next interval", "err", err)
			}
		}
	}
}

// Close flushes pending mutations and closes the store. Stop Run first.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.Dirty() {
			if err := e.Flush(); err != nil {
				errs = append(errs, fmt.Errorf("final flush: %w", err))
			}
		}
		if err := e.st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
