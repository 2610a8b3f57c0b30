package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// PropertyStore maps (spectrum uui, property name) pairs to string values.
// Overwrites are idempotent; no ordering is guaranteed across keys.
type PropertyStore interface {
	Put(spectrumUUI, propertyName, value string) error
	Get(spectrumUUI, propertyName string) (string, error)
	AvailablePropertyNames() ([]string, error)
	Size() (int, error)
	Close() error
}

// InMemoryPropertyStore keeps all properties in a map. Suitable for runs
// whose property volume fits in memory.
type InMemoryPropertyStore struct {
	mu     sync.RWMutex
	values map[string]string
	names  map[string]struct{}
}

// NewInMemoryPropertyStore creates an empty in-memory property store.
func NewInMemoryPropertyStore() *InMemoryPropertyStore {
	return &InMemoryPropertyStore{
		values: make(map[string]string),
		names:  make(map[string]struct{}),
	}
}

func propertyKey(uui, name string) string {
	return uui + "\x00" + name
}

func (s *InMemoryPropertyStore) Put(uui, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[propertyKey(uui, name)] = value
	s.names[name] = struct{}{}
	return nil
}

func (s *InMemoryPropertyStore) Get(uui, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[propertyKey(uui, name)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *InMemoryPropertyStore) AvailablePropertyNames() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *InMemoryPropertyStore) Size() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values), nil
}

func (s *InMemoryPropertyStore) Close() error { return nil }

// DiskPropertyStore persists properties on disk for runs too large for
// memory.
type DiskPropertyStore struct {
	db            *leveldb.DB
	dir           string
	removeOnClose bool

	mu    sync.Mutex
	size  int
	names map[string]struct{}
}

// NewDiskPropertyStore opens a property store at dir. An empty dir acquires
// a temp directory released on Close.
func NewDiskPropertyStore(dir string) (*DiskPropertyStore, error) {
	removeOnClose := false
	if dir == "" {
		tempDir, err := os.MkdirTemp("", "speclust-properties-")
		if err != nil {
			return nil, fmt.Errorf("creating temp property directory: %w", err)
		}
		dir = filepath.Join(tempDir, "db")
		removeOnClose = true
	}

	db, err := leveldb.OpenFile(dir, &opt.Options{
		Compression: opt.SnappyCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("opening property store: %w", err)
	}

	return &DiskPropertyStore{
		db:            db,
		dir:           dir,
		removeOnClose: removeOnClose,
		names:         make(map[string]struct{}),
	}, nil
}

func (s *DiskPropertyStore) Put(uui, name, value string) error {
	key := []byte(propertyKey(uui, name))
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("storing property %s: %w", name, err)
	}
	if err := s.db.Put(key, []byte(value), nil); err != nil {
		return fmt.Errorf("storing property %s: %w", name, err)
	}
	s.mu.Lock()
	if !exists {
		s.size++
	}
	s.names[name] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *DiskPropertyStore) Get(uui, name string) (string, error) {
	v, err := s.db.Get([]byte(propertyKey(uui, name)), nil)
	if err == leveldb.ErrNotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading property %s: %w", name, err)
	}
	return string(v), nil
}

func (s *DiskPropertyStore) AvailablePropertyNames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.names))
	for n := range s.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *DiskPropertyStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, nil
}

func (s *DiskPropertyStore) Close() error {
	err := s.db.Close()
	if s.removeOnClose {
		if rmErr := os.RemoveAll(filepath.Dir(s.dir)); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
