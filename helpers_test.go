package stackfs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
)

// fakeNode is an in-memory physical object
type fakeNode struct {
	attr     Attr
	children map[string]*fakeNode
}

func (n *fakeNode) Attr() Attr { return n.attr }

// fakeBranch is a scripted branch that counts lookups and injects errors
type fakeBranch struct {
	mu      sync.Mutex
	root    *fakeNode
	nextIno uint64
	errs    map[string]error
	calls   map[string]int
	lookups int
}

func newFakeBranch() *fakeBranch {
	return &fakeBranch{
		root: &fakeNode{
			attr:     Attr{Ino: 1, Mode: os.ModeDir | 0755},
			children: make(map[string]*fakeNode),
		},
		nextIno: 100,
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (b *fakeBranch) Root(ctx context.Context) (Object, error) {
	return b.root, nil
}

func (b *fakeBranch) Lookup(ctx context.Context, dir Object, name string) (Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lookups++
	b.calls[name]++
	if err, ok := b.errs[name]; ok {
		return nil, err
	}
	child, ok := dir.(*fakeNode).children[name]
	if !ok {
		return nil, &os.PathError{Op: "lookup", Path: name, Err: os.ErrNotExist}
	}
	return child, nil
}

// add creates p with mode, creating parent directories as needed
func (b *fakeBranch) add(p string, mode os.FileMode) *fakeNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextIno++
	return b.addLocked(p, Attr{Ino: b.nextIno, Mode: mode, Size: 42})
}

// addIno creates p with a fixed node number
func (b *fakeBranch) addIno(p string, ino uint64, mode os.FileMode) *fakeNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(p, Attr{Ino: ino, Mode: mode})
}

// addDev creates a special file carrying rdev
func (b *fakeBranch) addDev(p string, mode os.FileMode, rdev uint64) *fakeNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextIno++
	return b.addLocked(p, Attr{Ino: b.nextIno, Mode: mode, Rdev: rdev})
}

func (b *fakeBranch) addLocked(p string, attr Attr) *fakeNode {
	dir := b.root
	parts := strings.Split(strings.Trim(path.Clean(p), "/"), "/")
	for _, part := range parts[:len(parts)-1] {
		next, ok := dir.children[part]
		if !ok {
			b.nextIno++
			next = &fakeNode{
				attr:     Attr{Ino: b.nextIno, Mode: os.ModeDir | 0755},
				children: make(map[string]*fakeNode),
			}
			dir.children[part] = next
		}
		dir = next
	}
	n := &fakeNode{attr: attr}
	if attr.Mode.IsDir() {
		n.children = make(map[string]*fakeNode)
	}
	dir.children[parts[len(parts)-1]] = n
	return n
}

// remove deletes p
func (b *fakeBranch) remove(p string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir := b.root
	parts := strings.Split(strings.Trim(path.Clean(p), "/"), "/")
	for _, part := range parts[:len(parts)-1] {
		dir = dir.children[part]
	}
	delete(dir.children, parts[len(parts)-1])
}

// fail makes every lookup of name return err
func (b *fakeBranch) fail(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[name] = err
}

// callCount returns how many times name was looked up
func (b *fakeBranch) callCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

// revalidatingBranch adds a scripted Revalidator to a fakeBranch
type revalidatingBranch struct {
	*fakeBranch
	valid bool
	err   error
	calls int
	names []string
}

func (b *revalidatingBranch) Revalidate(ctx context.Context, dir Object, name string, obj Object) (bool, error) {
	b.calls++
	b.names = append(b.names, name)
	return b.valid, b.err
}

// discardLogger returns a logger that drops everything
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestFS mounts branches in priority order and closes the FS when the
// test ends.
func newTestFS(t testing.TB, branches []Branch, opts ...Option) *FS {
	t.Helper()
	all := []Option{WithLogger(discardLogger())}
	for _, b := range branches {
		all = append(all, WithBranch(b))
	}
	all = append(all, opts...)

	fs, err := New(context.Background(), all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

// mustLookup looks name up under parent and fails the test on error
func mustLookup(t testing.TB, fs *FS, parent *Dentry, name string, intent Intent) *Dentry {
	t.Helper()
	d, err := fs.Lookup(context.Background(), parent, name, intent)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return d
}

// slotIno returns the node number in slot i, or 0 when empty or negative
func slotIno(d *Dentry, i int) uint64 {
	p, ok := d.LowerPath(i)
	if !ok || p.Dentry.IsNegative() {
		return 0
	}
	return p.Dentry.Inode().Ino()
}

// slotState describes slot i as "empty", "negative" or "positive"
func slotState(d *Dentry, i int) string {
	p, ok := d.LowerPath(i)
	switch {
	case !ok:
		return "empty"
	case p.Dentry.IsNegative():
		return "negative"
	}
	return "positive"
}
