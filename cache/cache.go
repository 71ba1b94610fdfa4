package cache

import (
	"sync"

	"github.com/modrun/modrun/field"
	"github.com/modrun/modrun/modrunerr"
)

// Tag classifies a cached entry's lifetime under prune_cache.
type Tag int

const (
	// Permanent entries survive PruneCache; only ResetCache removes them.
	Permanent Tag = iota
	// Temporary entries are erased by PruneCache.
	Temporary
)

type entry struct {
	value field.ResultMap
	tag   Tag
}

// Cache maps a Fingerprint to a field.ResultMap, with Permanent/Temporary
// tagging, pruning, and reset.
type Cache struct {
	mu      sync.RWMutex
	entries map[Fingerprint]entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[Fingerprint]entry)}
}

// Count reports whether key is present.
func (c *Cache) Count(key Fingerprint) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.entries[key]; ok {
		return 1
	}
	return 0
}

// Set stores value under key with the given tag, overwriting any
// previous entry.
func (c *Cache) Set(key Fingerprint, value field.ResultMap, tag Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, tag: tag}
}

// Uncache returns the value stored under key. Without a default present,
// it fails with CacheMiss if key is absent.
func (c *Cache) Uncache(key Fingerprint) (field.ResultMap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, modrunerr.Newf(modrunerr.CacheMiss, "uncache: no entry for fingerprint")
	}
	return e.value, nil
}

// UncacheOr returns the value stored under key, or def if key is absent.
func (c *Cache) UncacheOr(key Fingerprint, def field.ResultMap) field.ResultMap {
	v, err := c.Uncache(key)
	if err != nil {
		return def
	}
	return v
}

// SetTemporary moves key into the Temporary tag, if present.
func (c *Cache) SetTemporary(key Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.tag = Temporary
		c.entries[key] = e
	}
}

// SetPermanent moves key into the Permanent tag, if present.
func (c *Cache) SetPermanent(key Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.tag = Permanent
		c.entries[key] = e
	}
}

// PruneCache erases every entry currently tagged Temporary.
func (c *Cache) PruneCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.tag == Temporary {
			delete(c.entries, k)
		}
	}
}

// ResetCache erases every entry regardless of tag.
func (c *Cache) ResetCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Fingerprint]entry)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
