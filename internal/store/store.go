package store

import "errors"

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store closed")

// Record is one key/value pair of a snapshot.
type Record struct {
	Key   string
	Value string
}

// Store persists full snapshots of the resident records.
// The flat file backend is the default; bbolt is available when a
// transactional file is preferred. Implementations must be safe for
// concurrent use: a recovery lookup may run while a snapshot is written.
type Store interface {
	// ForEach calls fn for every record of the current snapshot in the
	// order the records were written. A missing snapshot is not an error.
	ForEach(fn func(rec Record) error) error
	// Find looks key up in the current snapshot.
	Find(key string) (value string, found bool, err error)
	// WriteSnapshot atomically replaces the snapshot with records.
	WriteSnapshot(records []Record) error
	Close() error
}
