package storage

import (
	"fmt"
	"sync"
)

// Registry maps providers to the stores and fetchers serving them.
type Registry struct {
	mu       sync.RWMutex
	stores   map[Provider]BlobStore
	fetchers map[Provider]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{
		stores:   make(map[Provider]BlobStore),
		fetchers: make(map[Provider]Fetcher),
	}
}

// RegisterStore registers the store for its provider, replacing any
// previous registration.
func (r *Registry) RegisterStore(store BlobStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[store.Provider()] = store
}

// RegisterFetcher registers the fetcher used for provider.
func (r *Registry) RegisterFetcher(provider Provider, fetcher Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[provider] = fetcher
}

// Store returns the store serving target.
func (r *Registry) Store(target Target) (BlobStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[target.Provider()]
	if !ok {
		return nil, fmt.Errorf("%w: no store registered for provider %s", ErrNotSupported, target.Provider())
	}
	return store, nil
}

// Fetcher returns the fetcher serving target.
func (r *Registry) Fetcher(target Target) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fetcher, ok := r.fetchers[target.Provider()]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher registered for provider %s", ErrNotSupported, target.Provider())
	}
	return fetcher, nil
}
