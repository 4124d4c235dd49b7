package xsd

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/golang/groupcache/lru"
)

// DefaultCacheSize is the number of compiled schemas a Cache keeps
const DefaultCacheSize = 64

// Cache keeps compiled schemas per path. Each entry is loaded once, even
// when several goroutines ask for it at the same time; least recently used
// entries are evicted beyond the cache size.
type Cache struct {
	loader *Loader
	logger log.Logger

	mu      sync.Mutex
	entries *lru.Cache
}

// cacheEntry holds a schema and its loader
type cacheEntry struct {
	once   sync.Once
	schema *Schema
	err    error
}

// NewCache creates a cache of at most size schemas loaded through loader
func NewCache(loader *Loader, size int, logger log.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Cache{loader: loader, logger: logger, entries: lru.New(size)}
}

// Get returns the compiled schema at path, loading it on first use. Load
// failures are cached too, a broken schema is reported once per run.
func (c *Cache) Get(path string) (*Schema, error) {
	c.mu.Lock()
	var entry *cacheEntry
	if cached, ok := c.entries.Get(path); ok {
		entry = cached.(*cacheEntry)
		level.Debug(c.logger).Log("msg", "schema cache hit", "path", path)
	} else {
		entry = &cacheEntry{}
		c.entries.Add(path, entry)
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.schema, entry.err = c.loader.Load(path)
	})
	return entry.schema, entry.err
}

// Len returns the number of cached schemas
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear drops every cached schema
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
}
