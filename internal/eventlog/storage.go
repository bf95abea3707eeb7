package eventlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Handle is an open, appendable session log. *os.File opened with
// O_APPEND satisfies it: writes always land at the current end, so a
// Truncate(0) leaves the handle usable.
type Handle interface {
	io.Writer
	io.ReaderAt
	Sync() error
	Truncate(size int64) error
	Stat() (fs.FileInfo, error)
	Close() error
}

// Storage owns the byte streams session logs live in. Hosts that keep
// logs somewhere other than a plain directory implement it themselves.
type Storage interface {
	// Open opens name for appending, creating it if needed.
	Open(name string) (Handle, error)
	// Reader opens name for reading. A missing log reports fs.ErrNotExist.
	Reader(name string) (io.ReadCloser, error)
	// Replace atomically swaps the content of name for data. Handles
	// opened before the call keep pointing at the old content.
	Replace(name string, data []byte) error
	// Remove deletes name. Removing a missing log is not an error.
	Remove(name string) error
	// List returns the names of all stored logs.
	List() ([]string, error)
}

// DirStorage keeps logs as files in one directory.
type DirStorage struct {
	dir string
}

// NewDirStorage creates dir if needed and returns a Storage rooted there.
func NewDirStorage(dir string) (*DirStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: mkdir %s: %w", dir, err)
	}
	return &DirStorage{dir: dir}, nil
}

// Dir returns the directory logs are stored in.
func (s *DirStorage) Dir() string { return s.dir }

// Path returns the file path of name.
func (s *DirStorage) Path(name string) string { return filepath.Join(s.dir, name) }

func (s *DirStorage) Open(name string) (Handle, error) {
	f, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", name, err)
	}
	return f, nil
}

func (s *DirStorage) Reader(name string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("eventlog: read %s: %w", name, err)
	}
	return f, nil
}

// Replace writes data to a temporary file next to name and renames it
// over name.
func (s *DirStorage) Replace(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("eventlog: replace %s: %w", name, err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("eventlog: replace %s: write: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("eventlog: replace %s: sync: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("eventlog: replace %s: close: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		cleanup()
		return fmt.Errorf("eventlog: replace %s: rename: %w", name, err)
	}
	return nil
}

func (s *DirStorage) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("eventlog: remove %s: %w", name, err)
	}
	return nil
}

func (s *DirStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
