package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-flow-query/pkg/dfg"
)

// DefaultMaxSummaries bounds a summary cache opened without explicit limits.
const DefaultMaxSummaries = 50000

// SummaryCache stores data-flow function summaries keyed by qualified
// signature and body hash, optionally backed by a file.
type SummaryCache struct {
	lru  *LRU
	path string

	mu    sync.Mutex
	dirty bool
}

var _ dfg.SummaryCache = (*SummaryCache)(nil)

// NewSummaryCache creates an in-memory summary cache.
func NewSummaryCache(opts Options) *SummaryCache {
	if opts.MaxEntries == 0 && opts.MaxBytes == 0 {
		opts.MaxEntries = DefaultMaxSummaries
	}
	return &SummaryCache{lru: New(opts)}
}

// OpenSummaryCache creates a summary cache persisted at path, loading the
// existing file if there is one. A missing file starts an empty cache; an
// unreadable one is reported and also starts empty, so a stale cache never
// blocks an analysis.
func OpenSummaryCache(path string, opts Options) (*SummaryCache, error) {
	c := NewSummaryCache(opts)
	c.path = path

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("failed to open summary cache: %w", err)
	}
	defer f.Close()

	if err := c.lru.Load(f); err != nil {
		c.lru.Clear()
		return c, fmt.Errorf("failed to load summary cache %s: %w", path, err)
	}
	return c, nil
}

// Get returns the summary stored under key, or ErrKeyNotFound.
func (c *SummaryCache) Get(key string) (*dfg.PortableSummary, error) {
	b, ok := c.lru.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	var s dfg.PortableSummary
	if err := msgpack.Unmarshal(b, &s); err != nil {
		c.lru.Delete(key)
		return nil, fmt.Errorf("failed to decode summary %q: %w", key, err)
	}
	return &s, nil
}

// Put stores s under key.
func (c *SummaryCache) Put(key string, s *dfg.PortableSummary) error {
	if s == nil {
		return fmt.Errorf("nil summary for %q", key)
	}
	b, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode summary %q: %w", key, err)
	}
	c.lru.Set(key, b)
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached summaries.
func (c *SummaryCache) Len() int { return c.lru.Len() }

// Stats returns the usage counters of the underlying LRU.
func (c *SummaryCache) Stats() Stats { return c.lru.Stats() }

// Path returns the backing file, empty for an in-memory cache.
func (c *SummaryCache) Path() string { return c.path }

// Flush writes the cache to its file if anything changed since the last
// flush. The file is replaced atomically.
func (c *SummaryCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" || !c.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".summaries-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := c.lru.Save(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	c.dirty = false
	return nil
}
