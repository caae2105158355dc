package storage

import (
	"sort"

	"github.com/ValentinKolb/vKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is a concurrent map from store name to storage engine.
// It is populated by the EnvironmentManager and read by the protocol sessions.
type Registry struct {
	stores *xsync.MapOf[string, store.IStorageEngine]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{stores: xsync.NewMapOf[string, store.IStorageEngine]()}
}

// Get returns the store with the given name
func (r *Registry) Get(name string) (store.IStorageEngine, bool) {
	return r.stores.Load(name)
}

// Lookup returns the store with the given name or an error marked store.ErrNoSuchStore
func (r *Registry) Lookup(name string) (store.IStorageEngine, error) {
	s, ok := r.stores.Load(name)
	if !ok {
		return nil, errors.Wrapf(store.ErrNoSuchStore, "store %q", name)
	}
	return s, nil
}

// LoadOrStore returns the existing store for name if present. Otherwise it stores s.
// The loaded result is true if the store was already present.
func (r *Registry) LoadOrStore(name string, s store.IStorageEngine) (actual store.IStorageEngine, loaded bool) {
	return r.stores.LoadOrStore(name, s)
}

// Names returns the sorted names of all registered stores
func (r *Registry) Names() []string {
	names := make([]string, 0, r.stores.Size())
	r.stores.Range(func(name string, _ store.IStorageEngine) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Range calls fn for every store until fn returns false
func (r *Registry) Range(fn func(name string, s store.IStorageEngine) bool) {
	r.stores.Range(fn)
}

// Len returns the number of registered stores
func (r *Registry) Len() int {
	return r.stores.Size()
}

// Stats returns the metrics snapshot of a store if the store is metered
func (r *Registry) Stats(name string) (store.StoreStats, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return store.StoreStats{}, err
	}
	metered, ok := s.(*store.MeteredStore)
	if !ok {
		return store.StoreStats{Name: name}, nil
	}
	return metered.Stats(), nil
}

// drain removes and returns all stores
func (r *Registry) drain() []store.IStorageEngine {
	var out []store.IStorageEngine
	for _, name := range r.Names() {
		if s, ok := r.stores.LoadAndDelete(name); ok {
			out = append(out, s)
		}
	}
	return out
}
