// Package fusefs serves a stackfs instance over FUSE. It is a read-only
// name and attribute view: lookups go through the stackfs lookup engine and
// kernel forgets release the matching dentries.
package fusefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/absfs/stackfs"
)

// Default kernel cache timeouts
const (
	DefaultEntryTimeout    = 1 * time.Second
	DefaultAttrTimeout     = 1 * time.Second
	DefaultNegativeTimeout = 100 * time.Millisecond
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// FS is the union to serve. The caller keeps ownership and closes it
	// after the server has been unmounted.
	FS *stackfs.FS

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Kernel cache timeouts. Zero uses the defaults above.
	EntryTimeout    time.Duration
	AttrTimeout     time.Duration
	NegativeTimeout time.Duration

	// Logger receives diagnostic messages. If nil, errors are logged to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts fs at the configured mountpoint. The caller must call
// Unmount on the returned Server when done. The mountpoint directory is
// created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.EntryTimeout == 0 {
		options.EntryTimeout = DefaultEntryTimeout
	}
	if options.AttrTimeout == 0 {
		options.AttrTimeout = DefaultAttrTimeout
	}
	if options.NegativeTimeout == 0 {
		options.NegativeTimeout = DefaultNegativeTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	root := options.FS.Root()
	if root == nil {
		return nil, stackfs.ErrClosed
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	rootAttr := stableAttr(root.Inode())
	server, err := gofuse.Mount(options.Mountpoint, newNode(&options, root), &gofuse.Options{
		EntryTimeout:    &options.EntryTimeout,
		AttrTimeout:     &options.AttrTimeout,
		NegativeTimeout: &options.NegativeTimeout,
		RootStableAttr:  &rootAttr,
		MountOptions: fuse.MountOptions{
			FsName:     "stackfs",
			Name:       "stackfs",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("stackfs FUSE filesystem mounted",
		"mountpoint", options.Mountpoint,
		"branches", options.FS.BranchCount(),
	)
	return server, nil
}

// node is one kernel-visible inode. It owns the dentry it was looked up
// through and releases it when the kernel forgets the node.
type node struct {
	gofuse.Inode
	options *Options
	dentry  *stackfs.Dentry
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeOnForgetter = (*node)(nil)

func newNode(options *Options, d *stackfs.Dentry) *node {
	return &node{options: options, dentry: d}
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	d, err := n.options.FS.Lookup(ctx, n.dentry, name, stackfs.IntentNone)
	if err != nil {
		n.options.Logger.Warn("lookup failed", "parent", n.dentry.Name(), "name", name, "error", err)
		return nil, errnoOf(err)
	}
	if d == nil {
		return nil, syscall.ENOENT
	}
	inode := d.Inode()
	if inode == nil {
		d.Release()
		return nil, syscall.ENOENT
	}

	fillAttr(inode, &out.Attr)
	child := newNode(n.options, d)
	in := n.NewInode(ctx, child, stableAttr(inode))
	if in.Operations() != child {
		// The kernel already knows this inode through another node,
		// which keeps its own dentry.
		d.Release()
	}
	return in, 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	inode := n.dentry.Inode()
	if inode == nil {
		return syscall.ESTALE
	}
	fillAttr(inode, &out.Attr)
	return 0
}

func (n *node) OnForget() {
	n.dentry.Release()
}

// inodeNumber folds the anchor branch into the top byte so that node
// numbers from different branches never collide.
func inodeNumber(inode *stackfs.Inode) uint64 {
	return uint64(inode.Anchor())<<56 | inode.Ino()&(1<<56-1)
}

func stableAttr(inode *stackfs.Inode) gofuse.StableAttr {
	return gofuse.StableAttr{
		Mode: modeOf(inode.Attr().Mode) & syscall.S_IFMT,
		Ino:  inodeNumber(inode),
		Gen:  inode.Generation(),
	}
}

func fillAttr(inode *stackfs.Inode, out *fuse.Attr) {
	a := inode.Attr()
	out.Ino = inodeNumber(inode)
	out.Size = uint64(a.Size)
	out.Blocks = (out.Size + 511) / 512
	out.Mode = modeOf(a.Mode)
	out.Nlink = 1
	out.Rdev = uint32(inode.Rdev())
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}

// modeOf converts an os.FileMode into a raw st_mode
func modeOf(m os.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m.IsDir():
		mode |= syscall.S_IFDIR
	case m&os.ModeSymlink != 0:
		mode |= syscall.S_IFLNK
	case m&os.ModeCharDevice != 0:
		mode |= syscall.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= syscall.S_IFBLK
	case m&os.ModeNamedPipe != 0:
		mode |= syscall.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= syscall.S_IFSOCK
	default:
		mode |= syscall.S_IFREG
	}
	if m&os.ModeSetuid != 0 {
		mode |= syscall.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= syscall.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= syscall.S_ISVTX
	}
	return mode
}

// errnoOf maps a lookup error onto the errno the kernel sees
func errnoOf(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, stackfs.ErrNoMemory):
		return syscall.ENOMEM
	case errors.Is(err, stackfs.ErrInvalidName):
		return syscall.EINVAL
	case errors.Is(err, stackfs.ErrStale),
		errors.Is(err, stackfs.ErrInvalidState),
		errors.Is(err, stackfs.ErrClosed):
		return syscall.ESTALE
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	for _, target := range []error{os.ErrNotExist, os.ErrPermission, os.ErrExist, os.ErrInvalid} {
		if errors.Is(err, target) {
			return gofuse.ToErrno(target)
		}
	}
	return syscall.EIO
}
