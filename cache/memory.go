package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryCache is an in-memory cache with a background janitor.
type MemoryCache struct {
	entries map[string]*Entry
	mu      sync.RWMutex
	config  Config
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a new in-memory cache and starts its janitor.
// Call Close to stop it.
func NewMemoryCache(config Config) *MemoryCache {
	mc := &MemoryCache{
		entries: make(map[string]*Entry),
		config:  applyDefaults(config),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go mc.cleanup()

	return mc
}

// Get returns the entry for key, or nil if it is missing or expired.
func (mc *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	mc.mu.RLock()
	entry, exists := mc.entries[key]
	mc.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if entry.IsExpired() {
		mc.mu.Lock()
		delete(mc.entries, key)
		mc.mu.Unlock()
		return nil, nil
	}

	return copyEntry(entry), nil
}

// Set stores a copy of the entry.
func (mc *MemoryCache) Set(ctx context.Context, entry *Entry) error {
	stored := copyEntry(entry)
	if stored.TTL == 0 {
		stored.TTL = mc.config.TTL
	}
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now()
	}

	mc.mu.Lock()
	mc.entries[stored.Key] = stored
	mc.mu.Unlock()
	return nil
}

// Delete removes an entry from the cache.
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, key)
	return nil
}

// Clear removes all entries from the cache.
func (mc *MemoryCache) Clear(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*Entry)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

// Close stops the janitor. It is safe to call more than once.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		close(mc.stopCh)
	})
	<-mc.doneCh
	return nil
}

func (mc *MemoryCache) cleanup() {
	ticker := time.NewTicker(mc.config.CleanupInterval)
	defer ticker.Stop()
	defer close(mc.doneCh)

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, entry := range mc.entries {
		if entry.IsExpired() {
			delete(mc.entries, key)
		}
	}
}

func copyEntry(e *Entry) *Entry {
	c := *e
	c.Diagnostics = slices.Clone(e.Diagnostics)
	return &c
}
