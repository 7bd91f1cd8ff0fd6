// Package promptcache memoizes model outputs for idempotent prompt classes.
// Only calls whose result depends solely on normalized input content are
// cached: acknowledgments, quality scores, and question detection. Script and
// summary generation are never cached because their inputs are unique per
// session. The cache is shared across sessions for the process lifetime and
// entries never expire.
package promptcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jonathan/interview-agent/internal/llm"
)

// Key identifies a cache entry. Build one with NewKey so logically identical
// prompts collapse onto the same entry regardless of whitespace or casing.
type Key string

// NewKey derives a cache key from a prompt class and its content parts.
// The class keeps different prompt kinds over the same text distinct
// (e.g. a quality score and a question-detection check on one response).
func NewKey(class string, parts ...string) Key {
	h := sha256.New()
	h.Write([]byte(class))
	for _, part := range parts {
		h.Write([]byte{0})
		h.Write([]byte(llm.NormalizePrompt(part)))
	}
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// Cache is a concurrency-safe, process-wide memo table. Concurrent computes
// for the same key are collapsed with singleflight; values are content-derived
// and idempotent so last-writer-wins on the rare duplicate store is fine.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]string
	group   singleflight.Group
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]string)}
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. Errors from compute are returned without poisoning the cache.
func (c *Cache) GetOrCompute(key Key, compute func() (string, error)) (string, error) {
	c.mu.RLock()
	value, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	result, err, _ := c.group.Do(string(key), func() (any, error) {
		// Another caller may have stored the value while we waited.
		c.mu.RLock()
		value, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return value, nil
		}

		computed, err := compute()
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.entries[key] = computed
		c.mu.Unlock()
		return computed, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key Key) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Remove drops a single entry, letting a later call recompute it.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge empties the cache. Useful for testing.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[Key]string)
	c.mu.Unlock()
}
