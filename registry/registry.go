// Package registry tracks structural signatures for change detection.
//
// Binding generation computes a deterministic signature per class
// (descriptor.Signature / descriptor.Hash). The registry compares the
// fresh signature against the last recorded one so incremental tooling
// can tell which classes actually changed shape between generations.
//
// The backing store is injected, never a package singleton; two
// registries over two stores are fully independent. MapStore is the
// in-memory default, external tools may persist through their own Store.
package registry

import (
	"sort"
	"sync"
)

// Store persists class signatures between binding generations.
type Store interface {
	// Load returns the recorded signature for a class name.
	Load(name string) (string, bool)

	// Save records the signature for a class name.
	Save(name, signature string)

	// Names returns every recorded class name.
	Names() []string
}

// MapStore is a mutex-guarded in-memory Store.
type MapStore struct {
	mu   sync.RWMutex
	sigs map[string]string
}

// NewMapStore creates an empty in-memory store.
func NewMapStore() *MapStore {
	return &MapStore{sigs: make(map[string]string)}
}

func (s *MapStore) Load(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.sigs[name]
	return sig, ok
}

func (s *MapStore) Save(name, signature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sigs[name] = signature
}

func (s *MapStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sigs))
	for name := range s.sigs {
		names = append(names, name)
	}
	return names
}

// Registry detects signature changes against an injected store.
type Registry struct {
	store Store
}

// New creates a registry over the given store. A nil store gets a fresh
// MapStore.
func New(store Store) *Registry {
	if store == nil {
		store = NewMapStore()
	}
	return &Registry{store: store}
}

// Update compares signature against the recorded one for name and stores
// it. Returns true when the class is new or its signature changed.
func (r *Registry) Update(name, signature string) bool {
	prev, ok := r.store.Load(name)
	if ok && prev == signature {
		return false
	}
	r.store.Save(name, signature)
	return true
}

// Signature returns the recorded signature for a class name.
func (r *Registry) Signature(name string) (string, bool) {
	return r.store.Load(name)
}

// Names returns every recorded class name, sorted.
func (r *Registry) Names() []string {
	names := r.store.Names()
	sort.Strings(names)
	return names
}
