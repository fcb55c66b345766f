package stackfs

import (
	"sync"
	"sync/atomic"
)

// Ops names the operation set a logical inode dispatches to. It is chosen
// once when the inode is built and never changes.
type Ops uint8

const (
	FileOps Ops = iota
	DirOps
	SymlinkOps
	// SpecialOps marks device, fifo and socket inodes that pass straight
	// through to the device identified by Rdev instead of stacking.
	SpecialOps
)

func opsFor(t FileType) Ops {
	switch {
	case t == TypeDirectory:
		return DirOps
	case t == TypeSymlink:
		return SymlinkOps
	case t.IsSpecial():
		return SpecialOps
	}
	return FileOps
}

// Inode is the deduplicated logical identity of one file across branches.
type Inode struct {
	fs          *FS
	ino         uint64
	anchor      int
	anchorLower *LowerInode
	typ         FileType
	ops         Ops
	rdev        uint64
	generation  uint64
	refs        atomic.Int64
	stale       atomic.Bool

	// mu guards lowers and attr; it is never held across branch I/O.
	mu     sync.Mutex
	lowers []*LowerInode
	attr   Attr
}

// newInode builds a complete inode anchored at anchor. All slots start
// empty; the anchor slot takes its own reference.
func (fs *FS) newInode(anchor *LowerInode, attr Attr) *Inode {
	typ := attr.Type()
	i := &Inode{
		fs:          fs,
		ino:         anchor.Ino(),
		anchor:      anchor.Branch(),
		anchorLower: anchor,
		typ:         typ,
		ops:         opsFor(typ),
		generation:  fs.Generation(),
		lowers:      make([]*LowerInode, len(fs.volumes)),
		attr: Attr{
			Ino:   anchor.Ino(),
			Mode:  attr.Mode,
			Size:  attr.Size,
			Atime: attr.Atime,
			Mtime: attr.Mtime,
			Ctime: attr.Ctime,
		},
	}
	if typ.IsSpecial() {
		i.rdev = attr.Rdev
		i.attr.Rdev = attr.Rdev
	}
	i.lowers[i.anchor] = anchor.get()
	i.refs.Store(1)
	return i
}

// iget resolves anchor to its logical inode, creating and registering one
// when the identity is new. The caller owns one reference on the result.
func (fs *FS) iget(anchor *LowerInode) (*Inode, error) {
	if anchor.refs.Load() <= 0 {
		return nil, ErrStale
	}
	attr := anchor.Attr()
	inode, created := fs.index.findOrInsert(anchor, attr.Type(), func() *Inode {
		return fs.newInode(anchor, attr)
	})
	if created {
		fs.logger.Debug("new logical inode",
			"ino", inode.ino,
			"branch", inode.anchor,
			"type", inode.typ.String(),
		)
	}
	return inode, nil
}

// Ino returns the logical inode number, taken from the anchor
func (i *Inode) Ino() uint64 { return i.ino }

// Anchor returns the branch whose physical node defines this identity
func (i *Inode) Anchor() int { return i.anchor }

// Type returns the file type tag
func (i *Inode) Type() FileType { return i.typ }

// Ops returns the operation set
func (i *Inode) Ops() Ops { return i.ops }

// Rdev returns the device number of a special inode and zero otherwise
func (i *Inode) Rdev() uint64 { return i.rdev }

// Generation returns the generation stamp taken at construction
func (i *Inode) Generation() uint64 { return i.generation }

// Attr returns a copy of the cached attributes
func (i *Inode) Attr() Attr {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.attr
}

// Lower returns the lower inode attached at branch, or nil
func (i *Inode) Lower(branch int) *LowerInode {
	i.mu.Lock()
	defer i.mu.Unlock()
	if branch < 0 || branch >= len(i.lowers) {
		return nil
	}
	return i.lowers[branch]
}

// attachLower stores lower at branch, releasing any previous occupant.
// The anchor slot cannot be swapped for a different node.
func (i *Inode) attachLower(branch int, lower *LowerInode) error {
	if branch == i.anchor && lower != i.anchorLower {
		return ErrStale
	}
	lower.get()

	i.mu.Lock()
	old := i.lowers[branch]
	i.lowers[branch] = lower
	i.mu.Unlock()

	if old != nil {
		old.put()
	}
	return nil
}

// copyTimes propagates atime, mtime and ctime from a lower attribute set
func (i *Inode) copyTimes(a Attr) {
	i.mu.Lock()
	i.attr.Atime = a.Atime
	i.attr.Mtime = a.Mtime
	i.attr.Ctime = a.Ctime
	i.mu.Unlock()
}

// copyAtime propagates only the access time
func (i *Inode) copyAtime(a Attr) {
	i.mu.Lock()
	i.attr.Atime = a.Atime
	i.mu.Unlock()
}

// checkAnchor reports ErrStale once the inode has been evicted from the
// identity index because its anchor changed underneath it.
func (i *Inode) checkAnchor() error {
	if i.stale.Load() {
		return ErrStale
	}
	return nil
}

func (i *Inode) get() *Inode {
	i.refs.Add(1)
	return i
}

// tryGet acquires a reference unless the inode is being destroyed
func (i *Inode) tryGet() bool {
	for {
		n := i.refs.Load()
		if n <= 0 {
			return false
		}
		if i.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// put drops a reference. The last one unregisters the inode and releases
// every attached lower inode.
func (i *Inode) put() {
	n := i.refs.Add(-1)
	if n < 0 {
		panic("stackfs: inode reference underflow")
	}
	if n > 0 {
		return
	}
	i.fs.index.remove(i)

	i.mu.Lock()
	lowers := i.lowers
	i.lowers = make([]*LowerInode, len(lowers))
	i.mu.Unlock()

	for _, li := range lowers {
		if li != nil {
			li.put()
		}
	}
}
