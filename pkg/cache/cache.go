// Package cache provides an LRU byte cache with disk persistence, and on top
// of it the function summary cache used by the data-flow pass.
package cache

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// formatVersion is bumped whenever the encoded layout of entries changes.
const formatVersion = 1

// Entry is one cached value with its bookkeeping.
type Entry struct {
	Key        string    `msgpack:"key"`
	Value      []byte    `msgpack:"value"`
	CreatedAt  time.Time `msgpack:"created_at"`
	AccessedAt time.Time `msgpack:"accessed_at"`
}

func (e *Entry) size() int64 {
	return int64(len(e.Key) + len(e.Value))
}

type node struct {
	Entry
	prev, next *node
}

// ring is the recency list: head is the most recently used entry.
type ring struct {
	head, tail *node
	n          int
}

func (r *ring) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		r.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		r.tail = n.prev
	}
	n.prev, n.next = nil, nil
	r.n--
}

func (r *ring) pushFront(n *node) {
	n.prev = nil
	n.next = r.head
	if r.head != nil {
		r.head.prev = n
	}
	r.head = n
	if r.tail == nil {
		r.tail = n
	}
	r.n++
}

func (r *ring) touch(n *node) {
	if r.head == n {
		return
	}
	r.unlink(n)
	r.pushFront(n)
}

// Options configures an LRU cache.
type Options struct {
	// MaxEntries bounds the number of entries; 0 means unlimited.
	MaxEntries int
	// MaxBytes bounds the summed size of keys and values; 0 means unlimited.
	MaxBytes int64
	// OnEvict is called for every entry dropped to respect the bounds.
	OnEvict func(key string)
}

// Stats reports cache usage.
type Stats struct {
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// HitRate returns hits over lookups, 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// LRU is a concurrency-safe least-recently-used cache of byte values.
type LRU struct {
	mu    sync.Mutex
	items map[string]*node
	order ring
	bytes int64
	opts  Options

	hits, misses, evictions int64
}

// New creates an empty LRU cache.
func New(opts Options) *LRU {
	return &LRU{
		items: make(map[string]*node),
		opts:  opts,
	}
}

// Get returns a copy-free view of the value stored under key. Callers must
// not modify the returned slice.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	n.AccessedAt = time.Now()
	c.order.touch(n)
	return n.Value, true
}

// Set stores value under key, evicting least recently used entries as
// needed.
func (c *LRU) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if n, ok := c.items[key]; ok {
		c.bytes -= n.size()
		n.Value = value
		n.AccessedAt = now
		c.bytes += n.size()
		c.order.touch(n)
	} else {
		n := &node{Entry: Entry{Key: key, Value: value, CreatedAt: now, AccessedAt: now}}
		c.items[key] = n
		c.order.pushFront(n)
		c.bytes += n.size()
	}
	c.evict()
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.remove(n)
	}
}

// Clear drops every entry. Statistics are kept.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*node)
	c.order = ring{}
	c.bytes = 0
}

// Len returns the number of entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns a snapshot of the usage counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.items),
		Bytes:     c.bytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRU) remove(n *node) {
	c.order.unlink(n)
	delete(c.items, n.Key)
	c.bytes -= n.size()
}

func (c *LRU) overLimit() bool {
	if c.opts.MaxEntries > 0 && c.order.n > c.opts.MaxEntries {
		return true
	}
	return c.opts.MaxBytes > 0 && c.bytes > c.opts.MaxBytes
}

func (c *LRU) evict() {
	for c.overLimit() && c.order.tail != nil {
		victim := c.order.tail
		c.remove(victim)
		c.evictions++
		if c.opts.OnEvict != nil {
			c.opts.OnEvict(victim.Key)
		}
	}
}

// snapshot is the persisted form of a cache.
type snapshot struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Save writes every entry, most recently used first, with msgpack.
func (c *LRU) Save(w io.Writer) error {
	c.mu.Lock()
	snap := snapshot{Version: formatVersion, Entries: make([]Entry, 0, len(c.items))}
	for n := c.order.head; n != nil; n = n.next {
		snap.Entries = append(snap.Entries, n.Entry)
	}
	c.mu.Unlock()

	if err := msgpack.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	return nil
}

// Load replaces the contents of the cache with a stream written by Save.
// A stream of another format version is rejected.
func (c *LRU) Load(r io.Reader) error {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	if snap.Version != formatVersion {
		return fmt.Errorf("cache format version %d, want %d", snap.Version, formatVersion)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*node, len(snap.Entries))
	c.order = ring{}
	c.bytes = 0
	// oldest first so the most recent ends at the head
	for i := len(snap.Entries) - 1; i >= 0; i-- {
		n := &node{Entry: snap.Entries[i]}
		if _, dup := c.items[n.Key]; dup {
			continue
		}
		c.items[n.Key] = n
		c.order.pushFront(n)
		c.bytes += n.size()
	}
	c.evict()
	return nil
}
