package stackfs

import (
	"sync"
	"sync/atomic"
)

// RefStats is a snapshot of the live references an FS holds on lower
// handles. After every dentry is released and the FS is closed all three
// counts return to zero.
type RefStats struct {
	Volumes  int64
	Dentries int64
	Inodes   int64
}

type refStats struct {
	volumes  atomic.Int64
	dentries atomic.Int64
	inodes   atomic.Int64
}

func (s *refStats) snapshot() RefStats {
	return RefStats{
		Volumes:  s.volumes.Load(),
		Dentries: s.dentries.Load(),
		Inodes:   s.inodes.Load(),
	}
}

// Volume is the mount handle of one branch. It owns the branch root, the
// lower inode intern table and the absence cache for that branch.
type Volume struct {
	index  int
	branch Branch
	fs     *FS
	root   *LowerDentry
	refs   atomic.Int64

	mu     sync.Mutex
	inodes map[uint64]*LowerInode
	absent *absenceCache
}

func newVolume(fs *FS, index int, branch Branch) *Volume {
	v := &Volume{
		index:  index,
		branch: branch,
		fs:     fs,
		inodes: make(map[uint64]*LowerInode),
		absent: newAbsenceCache(fs.absentEnabled, fs.absentTTL, fs.absentMax),
	}
	v.refs.Store(1)
	fs.refs.volumes.Add(1)
	return v
}

// Index returns the branch index (priority) of the volume
func (v *Volume) Index() int { return v.index }

// Branch returns the branch behind the volume
func (v *Volume) Branch() Branch { return v.branch }

func (v *Volume) get() *Volume {
	v.refs.Add(1)
	v.fs.refs.volumes.Add(1)
	return v
}

func (v *Volume) put() {
	v.fs.refs.volumes.Add(-1)
	n := v.refs.Add(-1)
	if n < 0 {
		panic("stackfs: volume reference underflow")
	}
	if n > 0 {
		return
	}
	v.absent.clear()
	v.mu.Lock()
	root := v.root
	v.root = nil
	v.mu.Unlock()
	if root != nil {
		root.put()
	}
}

// internInode returns the lower inode for obj with one reference owned by
// the caller. Handles are interned by node number so that two lookups of
// the same physical object yield the same *LowerInode.
func (v *Volume) internInode(obj Object) *LowerInode {
	attr := obj.Attr()
	state := &lowerObject{obj: obj, attr: attr}

	v.mu.Lock()
	defer v.mu.Unlock()

	if li, ok := v.inodes[attr.Ino]; ok && li.tryGet() {
		li.state.Store(state)
		return li
	}
	li := &LowerInode{vol: v, ino: attr.Ino}
	li.state.Store(state)
	li.refs.Store(1)
	v.fs.refs.inodes.Add(1)
	v.inodes[attr.Ino] = li
	return li
}

// findOrCreateAbsent returns a negative lower dentry for name under parent
// with one reference owned by the caller.
func (v *Volume) findOrCreateAbsent(parent *LowerDentry, name string) *LowerDentry {
	return v.absent.findOrCreate(parent, name, func() *LowerDentry {
		return v.newLowerDentry(parent, name, nil)
	})
}

// newLowerDentry builds a lower dentry. It takes over the caller's
// reference on inode and acquires its own reference on parent.
func (v *Volume) newLowerDentry(parent *LowerDentry, name string, inode *LowerInode) *LowerDentry {
	if parent != nil {
		parent.get()
	}
	ld := &LowerDentry{
		vol:    v,
		parent: parent,
		name:   name,
		inode:  inode,
	}
	ld.refs.Store(1)
	v.fs.refs.dentries.Add(1)
	return ld
}

type lowerObject struct {
	obj  Object
	attr Attr
}

// LowerInode is a reference-counted handle to one physical object on one
// branch.
type LowerInode struct {
	vol   *Volume
	ino   uint64
	state atomic.Pointer[lowerObject]
	refs  atomic.Int64
}

// Ino returns the physical node number
func (li *LowerInode) Ino() uint64 { return li.ino }

// Branch returns the branch index the object lives on
func (li *LowerInode) Branch() int { return li.vol.index }

// Object returns the latest branch object seen for this node
func (li *LowerInode) Object() Object { return li.state.Load().obj }

// Attr returns the latest attributes seen for this node
func (li *LowerInode) Attr() Attr { return li.state.Load().attr }

// refresh replaces the cached attributes, keeping the object
func (li *LowerInode) refresh(attr Attr) {
	li.state.Store(&lowerObject{obj: li.Object(), attr: attr})
}

func (li *LowerInode) get() *LowerInode {
	li.refs.Add(1)
	li.vol.fs.refs.inodes.Add(1)
	return li
}

// tryGet acquires a reference unless the handle is already on its way out
func (li *LowerInode) tryGet() bool {
	for {
		n := li.refs.Load()
		if n <= 0 {
			return false
		}
		if li.refs.CompareAndSwap(n, n+1) {
			li.vol.fs.refs.inodes.Add(1)
			return true
		}
	}
}

func (li *LowerInode) put() {
	li.vol.fs.refs.inodes.Add(-1)
	n := li.refs.Add(-1)
	if n < 0 {
		panic("stackfs: lower inode reference underflow")
	}
	if n > 0 {
		return
	}
	v := li.vol
	v.mu.Lock()
	if v.inodes[li.ino] == li {
		delete(v.inodes, li.ino)
	}
	v.mu.Unlock()
}

// LowerDentry is a name position on one branch. A negative lower dentry
// has no inode and asserts that the name is absent under its parent.
type LowerDentry struct {
	vol    *Volume
	parent *LowerDentry
	name   string
	inode  *LowerInode
	refs   atomic.Int64
}

// Name returns the component name
func (ld *LowerDentry) Name() string { return ld.name }

// Parent returns the lower parent, nil for a branch root
func (ld *LowerDentry) Parent() *LowerDentry { return ld.parent }

// Inode returns the lower inode, nil when negative
func (ld *LowerDentry) Inode() *LowerInode { return ld.inode }

// IsNegative reports whether the entry records an absence
func (ld *LowerDentry) IsNegative() bool { return ld.inode == nil }

// IsDir reports whether the entry is a positive directory
func (ld *LowerDentry) IsDir() bool {
	return ld.inode != nil && ld.inode.Attr().IsDir()
}

func (ld *LowerDentry) get() *LowerDentry {
	ld.refs.Add(1)
	ld.vol.fs.refs.dentries.Add(1)
	return ld
}

func (ld *LowerDentry) put() {
	ld.vol.fs.refs.dentries.Add(-1)
	n := ld.refs.Add(-1)
	if n < 0 {
		panic("stackfs: lower dentry reference underflow")
	}
	if n > 0 {
		return
	}
	if ld.inode != nil {
		ld.inode.put()
	}
	if ld.parent != nil {
		ld.parent.put()
	}
}

// Path pairs a lower dentry with the volume it was found on. The zero
// value is an empty slot. A Path stored in a dentry slot owns one
// reference on each member.
type Path struct {
	Dentry *LowerDentry
	Volume *Volume
}

// IsEmpty reports whether the slot is unpopulated
func (p Path) IsEmpty() bool { return p.Dentry == nil }

func (p Path) get() Path {
	p.Dentry.get()
	p.Volume.get()
	return p
}

func (p Path) put() {
	if p.Dentry != nil {
		p.Dentry.put()
	}
	if p.Volume != nil {
		p.Volume.put()
	}
}
