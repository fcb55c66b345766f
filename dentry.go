package stackfs

import (
	"context"
	"sync"
	"sync/atomic"
)

// Validity is the answer of Revalidate
type Validity uint8

const (
	// Invalid tells the dentry cache to drop the dentry and look it up again
	Invalid Validity = iota
	// Valid means the cached mapping may be reused
	Valid
)

func (v Validity) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalid"
}

// Dentry is a logical name position. Its private data holds one lower path
// per branch; its inode is nil when the name resolved to nothing (a
// create or rename-target lookup of a missing name).
type Dentry struct {
	name string
	root bool

	fs   atomic.Pointer[FS]
	info atomic.Pointer[dentryInfo]

	// mu guards the slot contents, inode and parent
	mu     sync.Mutex
	parent *Dentry
	inode  *Inode
}

func newDentry(fs *FS, parent *Dentry, name string) *Dentry {
	d := &Dentry{name: name, parent: parent}
	d.fs.Store(fs)
	return d
}

// Name returns the component name
func (d *Dentry) Name() string { return d.name }

// Parent returns the dentry this one was looked up under, nil for the root
// or after release. The link does not keep the parent alive.
func (d *Dentry) Parent() *Dentry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent
}

// Inode returns the logical inode, nil for a negative dentry
func (d *Dentry) Inode() *Inode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inode
}

// IsNegative reports whether the dentry names nothing
func (d *Dentry) IsNegative() bool { return d.Inode() == nil }

// IsRoot reports whether d is the mount root
func (d *Dentry) IsRoot() bool { return d.root }

// FS returns the owning filesystem, nil once released
func (d *Dentry) FS() *FS { return d.fs.Load() }

// Generation returns the generation the private data was stamped with, or
// zero once released.
func (d *Dentry) Generation() uint64 {
	if info := d.info.Load(); info != nil {
		return info.generation
	}
	return 0
}

// Stale reports whether the branch set changed since the dentry was built
func (d *Dentry) Stale() bool {
	fs := d.fs.Load()
	info := d.info.Load()
	if fs == nil || info == nil {
		return true
	}
	return fs.isStale(info.generation)
}

// Revalidate decides whether a cached dentry may be reused. A released or
// stale dentry is Invalid. Otherwise the highest-priority branch gets the
// final say when it implements Revalidator; its error is returned as is.
func (d *Dentry) Revalidate(ctx context.Context) (Validity, error) {
	fs := d.fs.Load()
	info := d.info.Load()
	if fs == nil || info == nil {
		return Invalid, nil
	}
	if fs.isStale(info.generation) {
		fs.logger.Debug("rejecting stale dentry",
			"name", d.name,
			"stamp", info.generation,
			"generation", fs.Generation(),
		)
		return Invalid, nil
	}
	if inode := d.Inode(); inode != nil {
		if err := inode.checkAnchor(); err != nil {
			return Invalid, nil
		}
	}

	p, ok := d.getLowerPath(fs.order[0])
	if !ok {
		return Valid, nil
	}
	defer p.put()

	rv, ok := p.Volume.Branch().(Revalidator)
	if !ok {
		return Valid, nil
	}
	var dir, obj Object
	if parent := p.Dentry.Parent(); parent != nil && parent.Inode() != nil {
		dir = parent.Inode().Object()
	}
	if li := p.Dentry.Inode(); li != nil {
		obj = li.Object()
	}
	valid, err := rv.Revalidate(ctx, dir, p.Dentry.Name(), obj)
	if err != nil {
		return Invalid, err
	}
	if !valid {
		return Invalid, nil
	}
	return Valid, nil
}

// Release drops everything the dentry holds: every occupied slot, the
// private data and the inode reference. Releasing twice is a no-op, as is
// releasing the root, which belongs to the FS.
func (d *Dentry) Release() {
	if d.root {
		return
	}
	d.release()
}

func (d *Dentry) release() {
	fs := d.fs.Swap(nil)
	if fs == nil {
		return
	}
	// ErrInvalidState means the slots are already gone
	_ = d.freePrivate(fs)

	d.mu.Lock()
	inode := d.inode
	d.inode = nil
	d.parent = nil
	d.mu.Unlock()

	if inode != nil {
		inode.put()
	}
}
