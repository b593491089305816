// Package cache stores run results keyed by their input and rules.
//
// Runs are pure, so an entry never goes stale; TTL only bounds how long
// results occupy memory or Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/joeychilson/strmanip/rules"
)

// Cache is implemented by MemoryCache and RedisCache.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}

// Entry represents a cached run result.
type Entry struct {
	Key         string             `json:"key"`
	Output      string             `json:"output"`
	Lines       int                `json:"lines"`
	Rules       int                `json:"rules"`
	Diagnostics []rules.Diagnostic `json:"diagnostics"`
	StoredAt    time.Time          `json:"stored_at"`
	TTL         time.Duration      `json:"ttl"`
}

// IsFresh returns true if the entry is still within its TTL.
func (e *Entry) IsFresh() bool {
	return time.Since(e.StoredAt) < e.TTL
}

// IsExpired returns true once the entry is past its TTL.
func (e *Entry) IsExpired() bool {
	return !e.IsFresh()
}

// Config holds cache configuration.
type Config struct {
	Prefix          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns a cache config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:          "strmanip:",
		TTL:             10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func applyDefaults(config Config) Config {
	defaults := DefaultConfig()

	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.TTL == 0 {
		config.TTL = defaults.TTL
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	return config
}

// Key derives the cache key for an input block and a rules block.
// Both parts are length-prefixed so ("ab", "c") and ("a", "bc") differ.
func Key(input, rulesBlock string) string {
	h := sha256.New()
	var size [8]byte
	for _, part := range []string{input, rulesBlock} {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
