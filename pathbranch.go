package stackfs

import (
	"context"
	"fmt"
	"path"
	"sync"
)

// statFunc stats a slash path relative to a branch root without following
// a final symlink.
type statFunc func(name string) (Attr, error)

// pathObject is a branch object addressed by its slash path
type pathObject struct {
	path string
	attr Attr
}

func (o *pathObject) Attr() Attr { return o.attr }

// Path returns the slash path of the object relative to its branch root
func (o *pathObject) Path() string { return o.path }

// pathBranch is the shared core of the path-addressed adapters. Lookups
// join names onto the parent path and stat the result.
type pathBranch struct {
	stat statFunc
	inos *inoTable
}

func newPathBranch(stat statFunc) *pathBranch {
	return &pathBranch{stat: stat, inos: newInoTable()}
}

func (b *pathBranch) Root(ctx context.Context) (Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.object("/")
}

func (b *pathBranch) Lookup(ctx context.Context, dir Object, name string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parent, ok := dir.(*pathObject)
	if !ok {
		return nil, fmt.Errorf("%w: object %T does not belong to this branch", ErrInvalidState, dir)
	}
	return b.object(path.Join(parent.path, name))
}

// Stat re-reads the attributes of obj
func (b *pathBranch) Stat(ctx context.Context, obj Object) (Attr, error) {
	if err := ctx.Err(); err != nil {
		return Attr{}, err
	}
	o, ok := obj.(*pathObject)
	if !ok {
		return Attr{}, fmt.Errorf("%w: object %T does not belong to this branch", ErrInvalidState, obj)
	}
	cur, err := b.object(o.path)
	if err != nil {
		return Attr{}, err
	}
	return cur.attr, nil
}

// Revalidate re-stats the name. A positive entry is valid while the same
// node of the same type is there; a negative one while the name is absent.
func (b *pathBranch) Revalidate(ctx context.Context, dir Object, name string, obj Object) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p := cleanPath(name)
	if dir != nil {
		parent, ok := dir.(*pathObject)
		if !ok {
			return false, fmt.Errorf("%w: object %T does not belong to this branch", ErrInvalidState, dir)
		}
		p = path.Join(parent.path, name)
	}

	cur, err := b.object(p)
	if isNotExist(err) {
		return obj == nil, nil
	}
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, nil
	}
	old := obj.Attr()
	return cur.attr.Ino == old.Ino && cur.attr.Type() == old.Type(), nil
}

func (b *pathBranch) object(p string) (*pathObject, error) {
	attr, err := b.stat(p)
	if err != nil {
		return nil, err
	}
	if attr.Ino == 0 {
		attr.Ino = b.inos.get(p)
	}
	return &pathObject{path: p, attr: attr}, nil
}

// inoTable hands out stable node numbers for branches whose files carry
// none. Numbers are keyed by path and never reused.
type inoTable struct {
	mu   sync.Mutex
	next uint64
	inos map[string]uint64
}

func newInoTable() *inoTable {
	return &inoTable{next: 1, inos: make(map[string]uint64)}
}

func (t *inoTable) get(p string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ino, ok := t.inos[p]; ok {
		return ino
	}
	ino := t.next
	t.next++
	t.inos[p] = ino
	return ino
}
