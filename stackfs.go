package stackfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultAbsenceTTL is how long a cached negative lower dentry is reused
	DefaultAbsenceTTL = 30 * time.Second
	// DefaultAbsenceEntries bounds the per-branch absence cache
	DefaultAbsenceEntries = 1024
)

// FS is one mounted logical filesystem instance.
type FS struct {
	branches []Branch
	volumes  []*Volume // indexed by branch; index order is priority order
	order    []int
	logger   *slog.Logger
	alloc    Allocator

	absentEnabled bool
	absentTTL     time.Duration
	absentMax     int
	privateLimit  int64

	index      identityIndex
	generation atomic.Uint64
	refs       refStats

	mu     sync.Mutex
	root   *Dentry
	closed atomic.Bool
}

// Option is a functional option for configuring FS
type Option func(*FS)

// WithBranch adds a branch below the ones already configured. The first
// branch added has the highest priority.
func WithBranch(b Branch) Option {
	return func(fs *FS) {
		fs.branches = append(fs.branches, b)
	}
}

// WithLogger sets the logger for lookup and lifecycle diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(fs *FS) {
		fs.logger = logger
	}
}

// WithAbsenceCache configures the per-branch negative dentry cache
func WithAbsenceCache(enabled bool, ttl time.Duration, maxEntries int) Option {
	return func(fs *FS) {
		fs.absentEnabled = enabled
		fs.absentTTL = ttl
		fs.absentMax = maxEntries
	}
}

// WithPrivateDataLimit caps the number of dentries that may hold private
// data at once. Lookups beyond the cap fail with ErrNoMemory.
func WithPrivateDataLimit(n int) Option {
	return func(fs *FS) {
		fs.privateLimit = int64(n)
	}
}

// WithAllocator replaces the default slot array allocator
func WithAllocator(a Allocator) Option {
	return func(fs *FS) {
		fs.alloc = a
	}
}

// New mounts a logical filesystem over the configured branches. It reads
// every branch root and builds the root dentry; the generation starts at 1.
func New(ctx context.Context, opts ...Option) (*FS, error) {
	fs := &FS{
		absentEnabled: true,
		absentTTL:     DefaultAbsenceTTL,
		absentMax:     DefaultAbsenceEntries,
	}
	for _, opt := range opts {
		opt(fs)
	}
	if len(fs.branches) == 0 {
		return nil, ErrNoBranches
	}
	if fs.logger == nil {
		fs.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	if fs.alloc == nil {
		fs.alloc = newSlabAllocator(fs.privateLimit)
	}
	fs.generation.Store(1)

	fs.order = make([]int, len(fs.branches))
	fs.volumes = make([]*Volume, 0, len(fs.branches))
	for i, b := range fs.branches {
		fs.order[i] = i
		obj, err := b.Root(ctx)
		if err != nil {
			fs.unwindVolumes()
			return nil, fmt.Errorf("reading root of branch %d: %w", i, err)
		}
		if !obj.Attr().IsDir() {
			fs.unwindVolumes()
			return nil, fmt.Errorf("root of branch %d is not a directory", i)
		}
		v := newVolume(fs, i, b)
		v.root = v.newLowerDentry(nil, "/", v.internInode(obj))
		fs.volumes = append(fs.volumes, v)
	}

	root, err := fs.newRoot()
	if err != nil {
		fs.unwindVolumes()
		return nil, err
	}
	fs.root = root

	fs.logger.Info("stackfs mounted", "branches", len(fs.volumes))
	return fs, nil
}

// newRoot builds the root dentry with every branch root in its slots and
// every branch root inode attached to the root inode.
func (fs *FS) newRoot() (*Dentry, error) {
	d := &Dentry{name: "/", root: true}
	d.fs.Store(fs)
	if err := d.allocPrivate(fs); err != nil {
		return nil, err
	}
	for i, v := range fs.volumes {
		d.setLowerPath(i, Path{Dentry: v.root.get(), Volume: v.get()})
	}

	inode, err := fs.iget(fs.volumes[0].root.Inode())
	if err != nil {
		d.freePrivate(fs)
		return nil, err
	}
	for i, v := range fs.volumes[1:] {
		if err := inode.attachLower(i+1, v.root.Inode()); err != nil {
			inode.put()
			d.freePrivate(fs)
			return nil, err
		}
	}
	d.inode = inode
	return d, nil
}

func (fs *FS) unwindVolumes() {
	for _, v := range fs.volumes {
		v.put()
	}
	fs.volumes = nil
}

// Root returns the root dentry. It is owned by the FS; Release on it is a
// no-op and it is torn down by Close.
func (fs *FS) Root() *Dentry {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.root
}

// BranchCount returns the number of branches
func (fs *FS) BranchCount() int { return len(fs.volumes) }

// PriorityOrder returns the branch indexes in search order
func (fs *FS) PriorityOrder() []int {
	order := make([]int, len(fs.order))
	copy(order, fs.order)
	return order
}

// Volume returns the mount handle of branch i
func (fs *FS) Volume(i int) *Volume { return fs.volumes[i] }

// RefStats returns the live lower reference counts
func (fs *FS) RefStats() RefStats { return fs.refs.snapshot() }

// AbsenceStats returns absence cache statistics for branch i
func (fs *FS) AbsenceStats(i int) AbsenceStats {
	return fs.volumes[i].absent.Stats()
}

// ClearAbsenceCache drops every cached negative lower dentry
func (fs *FS) ClearAbsenceCache() {
	for _, v := range fs.volumes {
		v.absent.clear()
	}
}

// Close unmounts the filesystem: the root is released, absence caches are
// emptied and the mount reference on each volume is dropped. Dentries still
// held by callers keep their volumes alive until released.
func (fs *FS) Close() error {
	if !fs.closed.CompareAndSwap(false, true) {
		return nil
	}

	fs.mu.Lock()
	root := fs.root
	fs.root = nil
	fs.mu.Unlock()

	if root != nil {
		root.release()
	}
	for _, v := range fs.volumes {
		v.put()
	}

	fs.logger.Info("stackfs unmounted", "generation", fs.Generation())
	return nil
}

// cleanPath normalizes a slash path
func cleanPath(p string) string {
	cleaned := path.Clean("/" + p)
	return cleaned
}

// splitPath splits a path into components
func splitPath(p string) []string {
	p = cleanPath(p)
	if p == "/" {
		return []string{}
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// validName rejects anything that is not a single path component
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
