package stackfs

import (
	"sync"
	"time"
)

// absenceCache is the per-volume registry of negative lower dentries.
// Each registered entry holds one reference on its dentry, and through the
// dentry's parent chain on the directory's lower inode.
type absenceCache struct {
	entries    map[absentKey]*absentEntry
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	enabled    bool
	hits       uint64
	misses     uint64
	now        func() time.Time
}

// absentKey names an absence by physical directory. Every lower dentry
// built for the same directory shares one interned *LowerInode, so entries
// are found again no matter which logical dentry led to the directory.
type absentKey struct {
	dir  *LowerInode
	name string
}

func keyOf(parent *LowerDentry, name string) absentKey {
	return absentKey{dir: parent.Inode(), name: name}
}

// absentEntry stores a placeholder and its expiry
type absentEntry struct {
	dentry  *LowerDentry
	expires time.Time
}

// newAbsenceCache creates a cache with the specified configuration
func newAbsenceCache(enabled bool, ttl time.Duration, maxEntries int) *absenceCache {
	if !enabled {
		return &absenceCache{enabled: false, now: time.Now}
	}

	return &absenceCache{
		entries:    make(map[absentKey]*absentEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		enabled:    true,
		now:        time.Now,
	}
}

// findOrCreate returns the registered placeholder for name under the
// directory behind parent, or creates and registers one. The returned dentry carries a reference for
// the caller.
func (c *absenceCache) findOrCreate(parent *LowerDentry, name string, create func() *LowerDentry) *LowerDentry {
	if !c.enabled {
		return create()
	}

	key := keyOf(parent, name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if c.now().Before(entry.expires) {
			c.hits++
			return entry.dentry.get()
		}
		// Expired: drop it and register a fresh placeholder
		delete(c.entries, key)
		entry.dentry.put()
	}
	c.misses++
	c.sweep()

	// Evict old entries if cache is full
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	d := create()
	c.entries[key] = &absentEntry{
		dentry:  d.get(),
		expires: c.now().Add(c.ttl),
	}
	return d
}

// invalidate drops the placeholder for name under parent's directory, if any
func (c *absenceCache) invalidate(parent *LowerDentry, name string) {
	if !c.enabled {
		return
	}

	key := keyOf(parent, name)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok {
		entry.dentry.put()
	}
}

// clear removes all entries
func (c *absenceCache) clear() {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	old := c.entries
	c.entries = make(map[absentKey]*absentEntry)
	c.mu.Unlock()

	for _, entry := range old {
		entry.dentry.put()
	}
}

// sweep drops every expired entry. Caller holds c.mu.
func (c *absenceCache) sweep() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
			entry.dentry.put()
		}
	}
}

// evictOldest removes the entry closest to expiry. Caller holds c.mu.
func (c *absenceCache) evictOldest() {
	var oldestKey absentKey
	var oldest *absentEntry

	for key, entry := range c.entries {
		if oldest == nil || entry.expires.Before(oldest.expires) {
			oldestKey = key
			oldest = entry
		}
	}

	if oldest != nil {
		delete(c.entries, oldestKey)
		oldest.dentry.put()
	}
}

// Stats returns cache statistics
func (c *absenceCache) Stats() AbsenceStats {
	if !c.enabled {
		return AbsenceStats{Enabled: false}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return AbsenceStats{
		Enabled:    true,
		Size:       len(c.entries),
		MaxEntries: c.maxEntries,
		TTL:        c.ttl,
		Hits:       c.hits,
		Misses:     c.misses,
	}
}

// AbsenceStats contains absence cache statistics for one branch
type AbsenceStats struct {
	Enabled    bool
	Size       int
	MaxEntries int
	TTL        time.Duration
	Hits       uint64
	Misses     uint64
}
