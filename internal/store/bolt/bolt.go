package bolt

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"blinkdb/internal/store"
)

var (
	recordsBucket = []byte("records") // seq (uint64 big endian) → encoded record
	indexBucket   = []byte("index")   // 'k' + key → seq
)

// indexKey prefixes key so the empty key, which bbolt rejects, can be
// indexed too.
func indexKey(key string) []byte {
	return append([]byte{'k'}, key...)
}

// Store implements store.Store using bbolt (embedded B+ tree). A snapshot
// replaces both buckets inside one read-write transaction.
type Store struct {
	db *bolt.DB
}

var _ store.Store = (*Store)(nil)

// Open creates or opens a bbolt database at the given path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) ForEach(fn func(rec store.Record) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("record %x: %w", k, err)
			}
			return fn(rec)
		})
	})
}

func (s *Store) Find(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(indexBucket)
		recs := tx.Bucket(recordsBucket)
		if idx == nil || recs == nil {
			return nil
		}
		seq := idx.Get(indexKey(key))
		if seq == nil {
			return nil
		}
		v := recs.Get(seq)
		if v == nil {
			return fmt.Errorf("index entry for %q points to missing record", key)
		}
		rec, err := decodeRecord(v)
		if err != nil {
			return fmt.Errorf("record for %q: %w", key, err)
		}
		value, found = rec.Value, true
		return nil
	})
	return value, found, err
}

func (s *Store) WriteSnapshot(records []store.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, indexBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return fmt.Errorf("dropping bucket %s: %w", name, err)
				}
			}
		}
		recs, err := tx.CreateBucket(recordsBucket)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		idx, err := tx.CreateBucket(indexBucket)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		recs.FillPercent = 1.0 // keys are appended in ascending order

		seen := make(map[string]struct{}, len(records))
		for i, rec := range records {
			if _, dup := seen[rec.Key]; dup {
				return fmt.Errorf("duplicate key %q in snapshot", rec.Key)
			}
			seen[rec.Key] = struct{}{}

			seq := make([]byte, 8)
			binary.BigEndian.PutUint64(seq, uint64(i+1))
			if err := recs.Put(seq, encodeRecord(rec)); err != nil {
				return err
			}
			if err := idx.Put(indexKey(rec.Key), seq); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
