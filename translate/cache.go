package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	log "github.com/sirupsen/logrus"
)

// DefaultCacheTTL is how long a translation is reused
const DefaultCacheTTL = 180 * 24 * time.Hour

type cacheEntry struct {
	Val string `json:"val"`
	Ts  int64  `json:"ts"`
}

// Cache stores translations keyed by a hash of the exact source text.
// Expired entries stay on disk and are only ignored on lookup.
type Cache struct {
	path    string
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type CacheOption func(*Cache)

// WithClock overrides the time source used for timestamps and expiry
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// OpenCache loads the cache file at path. An empty path keeps the cache in
// memory only. Unreadable files start an empty cache.
func OpenCache(path string, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		path:    path,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if path == "" {
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithFields(log.Fields{"path": path, "error": err}).Warn("Translation cache unreadable, starting empty")
		}
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		log.WithFields(log.Fields{"path": path, "error": err}).Warn("Translation cache corrupt, starting empty")
		c.entries = map[string]cacheEntry{}
	}
	return c
}

// CacheKey is the stable hash of a source text
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached translation of text if it has not expired
func (c *Cache) Get(text string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[CacheKey(text)]
	if !ok {
		return "", false
	}
	if c.now().Sub(time.Unix(entry.Ts, 0)) > c.ttl {
		return "", false
	}
	return entry.Val, true
}

// Put stores a translation and persists the whole cache. Persistence
// failures are logged, the entry stays usable in memory.
func (c *Cache) Put(text, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[CacheKey(text)] = cacheEntry{Val: translated, Ts: c.now().Unix()}
	if c.path == "" {
		return
	}

	data, err := json.Marshal(c.entries)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Failed to encode translation cache")
		return
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.WithFields(log.Fields{"path": c.path, "error": err}).Error("Failed to create translation cache directory")
			return
		}
	}
	if err := renameio.WriteFile(c.path, data, 0o644); err != nil {
		log.WithFields(log.Fields{"path": c.path, "error": err}).Error("Failed to write translation cache")
	}
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
