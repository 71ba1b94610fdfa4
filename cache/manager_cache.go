package cache

import "sync"

// entryRef is one vended Cache plus the number of modules currently holding
// a handle to it — the same reference-counted-vending shape as the
// teacher's UsagePool (_examples/caddyserver-caddy/usagepool_test.go's
// LoadOrNew/References/Delete), adapted from "one shared *http.Server per
// listener key" to "one shared *Cache per module key".
type entryRef struct {
	cache *Cache
	refs  int
}

// ManagerCache vends two Caches per registered module key: a module cache
// used by the runtime for result memoization, and a user cache for
// developer-held intermediates inside a ModuleBase's Run. Grounded on
// pluginplay/cache/cache.hpp and src/python/cache/export_module_manager_cache.cpp
// (the original source has no standalone module_manager_cache.hpp), and on
// the teacher's UsagePool reference-counted vending pattern.
type ManagerCache struct {
	mu      sync.Mutex
	modules map[string]*entryRef
	users   map[string]*entryRef
}

// NewManagerCache returns an empty ManagerCache.
func NewManagerCache() *ManagerCache {
	return &ManagerCache{
		modules: make(map[string]*entryRef),
		users:   make(map[string]*entryRef),
	}
}

func vend(mu *sync.Mutex, table map[string]*entryRef, key string) *Cache {
	mu.Lock()
	defer mu.Unlock()
	e, ok := table[key]
	if !ok {
		e = &entryRef{cache: New()}
		table[key] = e
	}
	e.refs++
	return e.cache
}

// ModuleCache returns the shared result-memoization Cache for key,
// creating it (with one reference) on first vend.
func (m *ManagerCache) ModuleCache(key string) *Cache {
	return vend(&m.mu, m.modules, key)
}

// UserCache returns the shared developer-scratch Cache for key, creating it
// on first vend.
func (m *ManagerCache) UserCache(key string) *Cache {
	return vend(&m.mu, m.users, key)
}

// Release drops one reference to key's module and user caches. When a
// table's reference count reaches zero the entry is removed; the Cache
// itself is not explicitly destroyed (Go's GC reclaims it once
// unreferenced), unlike the teacher's explicit Destructor callback, since
// result caches hold no external resources.
func (m *ManagerCache) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, table := range []map[string]*entryRef{m.modules, m.users} {
		if e, ok := table[key]; ok {
			e.refs--
			if e.refs <= 0 {
				delete(table, key)
			}
		}
	}
}

// References reports the current module-cache reference count for key.
func (m *ManagerCache) References(key string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.modules[key]
	if !ok {
		return 0, false
	}
	return e.refs, true
}

// Rekey moves key's module and user cache entries to newKey, used by
// ModuleManager.RenameModule.
func (m *ManagerCache) Rekey(key, newKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, table := range []map[string]*entryRef{m.modules, m.users} {
		if e, ok := table[key]; ok {
			delete(table, key)
			table[newKey] = e
		}
	}
}
