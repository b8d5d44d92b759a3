// Package file stores snapshots as a flat text file of key<TAB>value lines.
package file

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"blinkdb/internal/logging"
	"blinkdb/internal/store"
)

var logger = logging.For("store.file")

// Only TAB, LF, CR and backslash are escaped, so ordinary text lines stay
// in the plain key<TAB>value form.
var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\t`, "\t", `\n`, "\n", `\r`, "\r")
)

// Store implements store.Store on a single snapshot file. Snapshots are
// written to a temporary file in the same directory and renamed over the
// previous one, so readers see either the old or the new snapshot.
type Store struct {
	path string

	mu     sync.Mutex // serializes WriteSnapshot
	closed bool
}

var _ store.Store = (*Store)(nil)

// Open prepares a snapshot file at path. The file itself is created on
// the first WriteSnapshot; the parent directory is created now.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) ForEach(fn func(rec store.Record) error) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.scan(fn)
}

// Find is a single linear pass over the snapshot.
func (s *Store) Find(key string) (string, bool, error) {
	if s.isClosed() {
		return "", false, store.ErrClosed
	}
	var (
		value string
		found bool
	)
	errStop := errors.New("stop")
	err := s.scan(func(rec store.Record) error {
		if rec.Key == key {
			value, found = rec.Value, true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", false, err
	}
	return value, found, nil
}

func (s *Store) WriteSnapshot(records []store.Record) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if err := writeRecord(w, rec); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) scan(fn func(rec store.Record) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			rec, ok := parseRecord(strings.TrimSuffix(line, "\n"))
			if !ok {
				logger.Warn("skipping malformed snapshot line", "path", s.path, "line", lineNo)
			} else if ferr := fn(rec); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading snapshot: %w", err)
		}
	}
}

func writeRecord(w *bufio.Writer, rec store.Record) error {
	if _, err := escaper.WriteString(w, rec.Key); err != nil {
		return err
	}
	if err := w.WriteByte('\t'); err != nil {
		return err
	}
	if _, err := escaper.WriteString(w, rec.Value); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

func parseRecord(line string) (store.Record, bool) {
	key, value, ok := strings.Cut(line, "\t")
	if !ok {
		return store.Record{}, false
	}
	return store.Record{Key: unescaper.Replace(key), Value: unescaper.Replace(value)}, true
}
