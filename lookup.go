package stackfs

import (
	"context"
	"os"
)

// Intent qualifies a lookup with what the caller is about to do with the
// name.
type Intent uint8

const (
	IntentNone   Intent = 0
	IntentCreate Intent = 1 << iota
	IntentRenameTarget
)

// primesCreate reports whether an absence on the first searchable branch is
// enough: the caller wants a position to create at, not an existing file.
func (i Intent) primesCreate() bool {
	return i&(IntentCreate|IntentRenameTarget) != 0
}

func (i Intent) String() string {
	switch i {
	case IntentNone:
		return "none"
	case IntentCreate:
		return "create"
	case IntentRenameTarget:
		return "rename-target"
	}
	return "create|rename-target"
}

// Lookup resolves name under parent across every branch in priority order.
//
// The first branch holding the name wins and the child is interposed on its
// physical node. A branch where the name is absent records a cached negative
// lower dentry and the search moves on; with a create or rename-target
// intent that first absence ends the search and a negative dentry is
// returned. Any other branch error aborts the whole lookup with a
// *LookupError. When no branch has the name the result is (nil, nil).
//
// The caller owns the returned dentry and must Release it.
func (fs *FS) Lookup(ctx context.Context, parent *Dentry, name string, intent Intent) (*Dentry, error) {
	if fs.closed.Load() {
		return nil, ErrClosed
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	if parent == nil || parent.fs.Load() != fs || parent.info.Load() == nil {
		return nil, ErrInvalidState
	}
	// held for the whole lookup: a concurrent Release of parent may drop
	// the last dentry reference on it
	parentInode := parent.Inode()
	if parentInode != nil {
		if !parentInode.tryGet() {
			return nil, ErrInvalidState
		}
		defer parentInode.put()
	}

	d := newDentry(fs, parent, name)
	if err := d.allocPrivate(fs); err != nil {
		fs.logger.Warn("lookup failed", "name", name, "error", err)
		return nil, err
	}

	for _, i := range fs.order {
		lowerParent, ok := parent.getLowerPath(i)
		if !ok {
			continue
		}
		if !lowerParent.Dentry.IsDir() {
			lowerParent.put()
			continue
		}
		done, err := fs.lookupBranch(ctx, d, parentInode, i, lowerParent, intent)
		lowerParent.put()
		if err != nil {
			d.release()
			return nil, err
		}
		if done {
			return d, nil
		}
	}

	fs.logger.Debug("name not found on any branch", "name", name)
	d.release()
	return nil, nil
}

// lookupBranch searches one branch. It reports done when the search must
// stop with d as the result.
func (fs *FS) lookupBranch(ctx context.Context, d *Dentry, parentInode *Inode, i int, lowerParent Path, intent Intent) (bool, error) {
	vol := lowerParent.Volume
	dir := lowerParent.Dentry

	obj, err := vol.Branch().Lookup(ctx, dir.Inode().Object(), d.name)
	if err == nil && obj == nil {
		err = os.ErrNotExist
	}
	switch {
	case err == nil:
		if err := fs.interpose(ctx, d, parentInode, i, lowerParent, obj); err != nil {
			return false, err
		}
		fs.logger.Debug("name found", "branch", i, "name", d.name, "ino", obj.Attr().Ino)
		return true, nil

	case isNotExist(err):
		neg := vol.findOrCreateAbsent(dir, d.name)
		d.setLowerPath(i, Path{Dentry: neg, Volume: vol.get()})
		fs.logger.Debug("name absent", "branch", i, "name", d.name, "intent", intent.String())
		return intent.primesCreate(), nil

	default:
		fs.logger.Warn("lookup aborted", "branch", i, "name", d.name, "error", err)
		return false, &LookupError{Op: "lookup", Branch: i, Name: d.name, Err: err}
	}
}

// interpose binds d to the physical object found on branch i: the lower
// dentry goes into slot i, the logical inode is resolved with that object as
// anchor, and the parent picks up this branch's directory and its atime.
func (fs *FS) interpose(ctx context.Context, d *Dentry, parentInode *Inode, i int, lowerParent Path, obj Object) error {
	vol := lowerParent.Volume
	dir := lowerParent.Dentry

	li := vol.internInode(obj)
	ld := vol.newLowerDentry(dir, d.name, li)
	vol.absent.invalidate(dir, d.name)
	d.setLowerPath(i, Path{Dentry: ld, Volume: vol.get()})

	inode, err := fs.iget(li)
	if err != nil {
		d.putResetLowerPath(i)
		return err
	}
	inode.copyTimes(li.Attr())

	d.mu.Lock()
	d.inode = inode
	d.mu.Unlock()

	if parentInode != nil {
		if parentInode.Lower(i) == nil {
			// only fails for the anchor slot, which is never empty
			_ = parentInode.attachLower(i, dir.Inode())
		}
		parentInode.copyAtime(fs.statDir(ctx, vol, dir.Inode()))
	}
	return nil
}

// statDir returns the current attributes of a searched directory. Without a
// Stater, or when the re-read fails or finds a different node, the
// attributes seen when the directory was looked up are used.
func (fs *FS) statDir(ctx context.Context, vol *Volume, li *LowerInode) Attr {
	st, ok := vol.Branch().(Stater)
	if !ok {
		return li.Attr()
	}
	attr, err := st.Stat(ctx, li.Object())
	if err != nil || attr.Ino != li.Ino() || !attr.IsDir() {
		fs.logger.Debug("keeping cached directory attributes",
			"branch", vol.Index(),
			"ino", li.Ino(),
			"error", err,
		)
		return li.Attr()
	}
	li.refresh(attr)
	return attr
}
