package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// evictFraction is the share of entries removed when the store exceeds its
// configured ceiling, least recently accessed first.
const evictFraction = 0.2

// CacheEntry is one stored model response with its access metadata.
type CacheEntry struct {
	Response    json.RawMessage `json:"response"`
	CreatedAt   time.Time       `json:"created_at"`
	LastAccess  time.Time       `json:"last_access"`
	AccessCount int             `json:"access_count"`
}

// Cache is a content-addressed store of model responses with in-memory and
// durable-file backing. Persistence is write-through but best effort: a failed
// persist is logged and never fails the calling request. Callers must Close
// the cache to guarantee the final flush.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*CacheEntry
	path       string
	maxEntries int
	dirty      bool
	logger     hclog.Logger
}

// OpenCache loads the cache persisted at path, starting empty when the file is
// missing or unreadable. maxEntries bounds the store; zero or negative
// disables eviction.
func OpenCache(path string, maxEntries int, logger hclog.Logger) *Cache {
	c := &Cache{
		entries:    make(map[string]*CacheEntry),
		path:       path,
		maxEntries: maxEntries,
		logger:     logger.Named("llm-cache"),
	}
	if path == "" {
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read cache file, starting empty", "path", path, "error", err)
		}
		return c
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		c.logger.Warn("cache file is corrupt, starting empty", "path", path, "error", err)
		c.entries = make(map[string]*CacheEntry)
	}
	c.logger.Debug("cache loaded", "path", path, "entries", len(c.entries))
	return c
}

// Get returns the cached response for key. A miss returns ok=false and never
// an error.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry.LastAccess = time.Now()
	entry.AccessCount++
	c.dirty = true
	return entry.Response, true
}

// Put stores a response under key, evicting the least-recently-used fraction
// when the store exceeds its ceiling, then persists write-through.
func (c *Cache) Put(key string, response json.RawMessage) {
	c.mu.Lock()
	now := time.Now()
	c.entries[key] = &CacheEntry{
		Response:    response,
		CreatedAt:   now,
		LastAccess:  now,
		AccessCount: 1,
	}
	c.dirty = true
	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictLocked()
	}
	c.mu.Unlock()

	if err := c.Flush(); err != nil {
		c.logger.Warn("cache persist failed", "error", err)
	}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes the least-recently-accessed fraction of entries.
func (c *Cache) evictLocked() {
	type keyed struct {
		key  string
		last time.Time
	}
	ordered := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		ordered = append(ordered, keyed{key: key, last: entry.LastAccess})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].last.Before(ordered[j].last)
	})

	drop := int(float64(len(ordered)) * evictFraction)
	if drop < 1 {
		drop = 1
	}
	for _, victim := range ordered[:drop] {
		delete(c.entries, victim.key)
	}
	c.logger.Debug("cache evicted least-recently-used entries", "evicted", drop, "remaining", len(c.entries))
}

// Flush persists the store if it changed since the last flush. The file is
// written to a temp sibling and renamed into place so a crash mid-write cannot
// corrupt the previous state.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" || !c.dirty {
		return nil
	}

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	c.dirty = false
	c.logger.Debug("cache flushed", "path", c.path, "entries", len(c.entries))
	return nil
}

// Close flushes the cache. Callers are required to invoke it; there is no
// teardown-time fallback.
func (c *Cache) Close() error {
	return c.Flush()
}
