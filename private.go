package stackfs

import (
	"sync"
	"sync/atomic"
)

// Allocator provisions the slot arrays attached to dentries. Alloc must
// return a zeroed slice of length n or ErrNoMemory.
type Allocator interface {
	Alloc(n int) ([]Path, error)
	Free(paths []Path)
}

// slabAllocator recycles slot arrays through a sync.Pool and optionally
// caps how many may be outstanding at once.
type slabAllocator struct {
	limit int64
	inUse atomic.Int64
	pool  sync.Pool
}

func newSlabAllocator(limit int64) *slabAllocator {
	return &slabAllocator{limit: limit}
}

func (a *slabAllocator) Alloc(n int) ([]Path, error) {
	if used := a.inUse.Add(1); a.limit > 0 && used > a.limit {
		a.inUse.Add(-1)
		return nil, ErrNoMemory
	}
	if p, ok := a.pool.Get().(*[]Path); ok && len(*p) == n {
		return *p, nil
	}
	return make([]Path, n), nil
}

func (a *slabAllocator) Free(paths []Path) {
	clear(paths)
	a.pool.Put(&paths)
	a.inUse.Add(-1)
}

// dentryInfo is the private data of a dentry: one slot per branch and the
// generation it was stamped with.
type dentryInfo struct {
	generation uint64
	paths      []Path
}

// allocPrivate attaches a zeroed slot array stamped with the current
// generation. The info is published with a single atomic store.
func (d *Dentry) allocPrivate(fs *FS) error {
	paths, err := fs.alloc.Alloc(len(fs.volumes))
	if err != nil {
		return err
	}
	d.info.Store(&dentryInfo{
		generation: fs.Generation(),
		paths:      paths,
	})
	return nil
}

// setLowerPath stores p in slot i. The slot must be empty; callers release
// any previous occupant with putResetLowerPath first.
func (d *Dentry) setLowerPath(i int, p Path) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := d.info.Load()
	if info == nil {
		p.put()
		return
	}
	info.paths[i] = p
}

// putResetLowerPath releases slot i and leaves it empty
func (d *Dentry) putResetLowerPath(i int) {
	d.mu.Lock()
	info := d.info.Load()
	if info == nil {
		d.mu.Unlock()
		return
	}
	p := info.paths[i]
	info.paths[i] = Path{}
	d.mu.Unlock()

	p.put()
}

// LowerPath returns slot i without taking references. The result is only
// valid while the dentry is not released.
func (d *Dentry) LowerPath(i int) (Path, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := d.info.Load()
	if info == nil || i < 0 || i >= len(info.paths) || info.paths[i].IsEmpty() {
		return Path{}, false
	}
	return info.paths[i], true
}

// getLowerPath returns slot i with references held for the caller
func (d *Dentry) getLowerPath(i int) (Path, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := d.info.Load()
	if info == nil || i < 0 || i >= len(info.paths) || info.paths[i].IsEmpty() {
		return Path{}, false
	}
	return info.paths[i].get(), true
}

// freePrivate releases every occupied slot and returns the array to the
// allocator. Slots are never assumed to be drained already.
func (d *Dentry) freePrivate(fs *FS) error {
	d.mu.Lock()
	info := d.info.Swap(nil)
	d.mu.Unlock()

	if info == nil {
		return ErrInvalidState
	}
	for i := range info.paths {
		info.paths[i].put()
	}
	fs.alloc.Free(info.paths)
	return nil
}

// reallocPrivate drops every occupied slot of a live dentry and restamps
// it with the current generation.
func (d *Dentry) reallocPrivate(fs *FS) error {
	d.mu.Lock()
	info := d.info.Load()
	if info == nil {
		d.mu.Unlock()
		return ErrInvalidState
	}
	old := make([]Path, len(info.paths))
	copy(old, info.paths)
	clear(info.paths)
	d.info.Store(&dentryInfo{
		generation: fs.Generation(),
		paths:      info.paths,
	})
	d.mu.Unlock()

	for _, p := range old {
		p.put()
	}
	return nil
}
