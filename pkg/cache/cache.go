// Package cache provides an LRU cache of rendered diagrams with msgpack
// persistence.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one cached value with its access metadata.
type Entry[V any] struct {
	Key        string    `msgpack:"key"`
	Value      V         `msgpack:"value"`
	CreatedAt  time.Time `msgpack:"created_at"`
	AccessedAt time.Time `msgpack:"accessed_at"`
}

type item[V any] struct {
	Entry[V]
	prev, next *item[V]
}

// Options configures an LRU.
type Options[V any] struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// OnEvict is called, with the lock held, when an entry is evicted or
	// deleted.
	OnEvict func(key string, value V)
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Length    int   `json:"length" yaml:"length"`
	HitCount  int64 `json:"hit_count" yaml:"hit_count"`
	MissCount int64 `json:"miss_count" yaml:"miss_count"`
}

// LRU is a size-bounded cache that evicts the least recently used entry.
// It is safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	items   map[string]*item[V]
	head    *item[V] // most recently used
	tail    *item[V] // least recently used
	maxSize int
	onEvict func(string, V)
	hits    int64
	misses  int64
	now     func() time.Time
}

// New creates an empty LRU.
func New[V any](opts Options[V]) *LRU[V] {
	return &LRU[V]{
		items:   make(map[string]*item[V]),
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
		now:     time.Now,
	}
}

// Key derives a cache key from its parts. Parts are length-prefixed before
// hashing so that ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *LRU[V]) unlink(it *item[V]) {
	if it.prev != nil {
		it.prev.next = it.next
	} else {
		c.head = it.next
	}
	if it.next != nil {
		it.next.prev = it.prev
	} else {
		c.tail = it.prev
	}
	it.prev, it.next = nil, nil
}

func (c *LRU[V]) pushFront(it *item[V]) {
	it.next = c.head
	if c.head != nil {
		c.head.prev = it
	}
	c.head = it
	if c.tail == nil {
		c.tail = it
	}
}

func (c *LRU[V]) pushBack(it *item[V]) {
	it.prev = c.tail
	if c.tail != nil {
		c.tail.next = it
	}
	c.tail = it
	if c.head == nil {
		c.head = it
	}
}

// Get returns the value under key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	it.AccessedAt = c.now()
	c.unlink(it)
	c.pushFront(it)
	return it.Value, true
}

// Set stores value under key, evicting from the cold end when full.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if it, ok := c.items[key]; ok {
		it.Value = value
		it.AccessedAt = now
		c.unlink(it)
		c.pushFront(it)
		return
	}

	it := &item[V]{Entry: Entry[V]{Key: key, Value: value, CreatedAt: now, AccessedAt: now}}
	c.items[key] = it
	c.pushFront(it)
	for c.maxSize > 0 && len(c.items) > c.maxSize {
		c.evict(c.tail)
	}
}

func (c *LRU[V]) evict(it *item[V]) {
	c.unlink(it)
	delete(c.items, it.Key)
	if c.onEvict != nil {
		c.onEvict(it.Key, it.Value)
	}
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if it, ok := c.items[key]; ok {
		c.evict(it)
	}
}

// Clear drops every entry. Statistics are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item[V])
	c.head, c.tail = nil, nil
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the current length and hit/miss counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Length: len(c.items), HitCount: c.hits, MissCount: c.misses}
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (c *LRU[V]) HitRate() float64 {
	s := c.Stats()
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// Entries returns a copy of the entries, most recently used first.
func (c *LRU[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]Entry[V], 0, len(c.items))
	for it := c.head; it != nil; it = it.next {
		entries = append(entries, it.Entry)
	}
	return entries
}

// Save writes the entries to w as msgpack, most recently used first.
func (c *LRU[V]) Save(w io.Writer) error {
	return msgpack.NewEncoder(w).Encode(c.Entries())
}

// Load replaces the contents with entries read from r, keeping their
// recency order. Entries beyond MaxSize are dropped from the cold end.
func (c *LRU[V]) Load(r io.Reader) error {
	var entries []Entry[V]
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*item[V])
	c.head, c.tail = nil, nil
	for _, e := range entries {
		if c.maxSize > 0 && len(c.items) >= c.maxSize {
			break
		}
		if _, dup := c.items[e.Key]; dup {
			continue
		}
		it := &item[V]{Entry: e}
		c.items[e.Key] = it
		c.pushBack(it)
	}
	return nil
}

// PersistToFile saves c to path, creating parent directories. The file is
// written next to path and renamed into place.
func PersistToFile[V any](c *LRU[V], path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Save(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFromFile loads c from path. A missing file leaves c untouched.
func LoadFromFile[V any](c *LRU[V], path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()
	return c.Load(f)
}
