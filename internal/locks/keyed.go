// Package locks provides per-key mutual exclusion so concurrent writers to the
// same settings file are serialized while different files proceed in parallel.
package locks

import (
	"path/filepath"
	"sync"
)

// Keyed hands out one mutex per key. Mutexes are never discarded; the key
// space here is the small fixed set of live settings files.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty keyed lock set.
func New() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

// ForPath returns the mutex guarding the given file path. Paths are cleaned so
// equivalent spellings share one lock.
func (k *Keyed) ForPath(path string) *sync.Mutex {
	key := filepath.Clean(path)

	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// WithPath runs fn while holding the lock for path.
func (k *Keyed) WithPath(path string, fn func() error) error {
	m := k.ForPath(path)
	m.Lock()
	defer m.Unlock()
	return fn()
}
