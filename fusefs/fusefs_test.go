package fusefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/afero"

	"github.com/absfs/stackfs"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

func newUnion(t *testing.T) (*stackfs.FS, afero.Fs, afero.Fs) {
	t.Helper()
	upper := afero.NewMemMapFs()
	lower := afero.NewMemMapFs()

	fs, err := stackfs.New(context.Background(),
		stackfs.WithBranch(stackfs.NewAferoBranch(upper)),
		stackfs.WithBranch(stackfs.NewAferoBranch(lower)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs, upper, lower
}

// TestModeOf tests conversion to raw modes
func TestModeOf(t *testing.T) {
	tests := []struct {
		mode os.FileMode
		want uint32
	}{
		{0644, syscall.S_IFREG | 0644},
		{os.ModeDir | 0755, syscall.S_IFDIR | 0755},
		{os.ModeSymlink | 0777, syscall.S_IFLNK | 0777},
		{os.ModeDevice | os.ModeCharDevice | 0620, syscall.S_IFCHR | 0620},
		{os.ModeDevice | 0660, syscall.S_IFBLK | 0660},
		{os.ModeNamedPipe | 0600, syscall.S_IFIFO | 0600},
		{os.ModeSocket | 0700, syscall.S_IFSOCK | 0700},
		{os.ModeDir | os.ModeSticky | 0777, syscall.S_IFDIR | syscall.S_ISVTX | 0777},
	}
	for _, tt := range tests {
		if got := modeOf(tt.mode); got != tt.want {
			t.Errorf("modeOf(%v) = %o, want %o", tt.mode, got, tt.want)
		}
	}
}

// TestErrnoOf tests error translation
func TestErrnoOf(t *testing.T) {
	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{stackfs.ErrNoMemory, syscall.ENOMEM},
		{fmt.Errorf("%w: %q", stackfs.ErrInvalidName, ".."), syscall.EINVAL},
		{stackfs.ErrClosed, syscall.ESTALE},
		{stackfs.ErrInvalidState, syscall.ESTALE},
		{&stackfs.LookupError{Op: "lookup", Branch: 1, Name: "x", Err: syscall.EACCES}, syscall.EACCES},
		{&stackfs.LookupError{Op: "lookup", Name: "x", Err: &os.PathError{Op: "stat", Path: "x", Err: os.ErrPermission}}, syscall.EPERM},
		{errors.New("disk on fire"), syscall.EIO},
	}
	for _, tt := range tests {
		if got := errnoOf(tt.err); got != tt.want {
			t.Errorf("errnoOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// TestFillAttr tests attribute export of a resolved inode
func TestFillAttr(t *testing.T) {
	fs, _, lower := newUnion(t)
	if err := afero.WriteFile(lower, "/f", []byte("hello"), 0640); err != nil {
		t.Fatal(err)
	}
	mtime := time.Unix(1735689600, 0)
	if err := lower.Chtimes("/f", mtime, mtime); err != nil {
		t.Fatal(err)
	}

	d, err := fs.Lookup(context.Background(), fs.Root(), "f", stackfs.IntentNone)
	if err != nil || d == nil {
		t.Fatalf("Lookup = %v, %v", d, err)
	}
	defer d.Release()

	var out fuse.Attr
	fillAttr(d.Inode(), &out)

	if out.Size != 5 || out.Blocks != 1 {
		t.Errorf("size/blocks = %d/%d", out.Size, out.Blocks)
	}
	if out.Mode != syscall.S_IFREG|0640 {
		t.Errorf("mode = %o", out.Mode)
	}
	if out.Mtime != uint64(mtime.Unix()) {
		t.Errorf("mtime = %d, want %d", out.Mtime, mtime.Unix())
	}
	if out.Ino>>56 != 1 {
		t.Errorf("ino %#x should carry anchor branch 1", out.Ino)
	}

	sa := stableAttr(d.Inode())
	if sa.Ino != out.Ino || sa.Mode != syscall.S_IFREG {
		t.Errorf("stable attr = %+v", sa)
	}
}

// TestMountOptions tests argument validation
func TestMountOptions(t *testing.T) {
	if _, err := Mount(Options{}); err == nil {
		t.Error("expected an error without a mountpoint")
	}
	if _, err := Mount(Options{Mountpoint: t.TempDir()}); err == nil {
		t.Error("expected an error without a filesystem")
	}

	fs, _, _ := newUnion(t)
	fs.Close()
	if _, err := Mount(Options{Mountpoint: t.TempDir(), FS: fs}); !errors.Is(err, stackfs.ErrClosed) {
		t.Errorf("Mount on closed FS = %v, want ErrClosed", err)
	}
}

// TestMount tests lookups through a real FUSE mount
func TestMount(t *testing.T) {
	fuseAvailable(t)

	fs, upper, lower := newUnion(t)
	if err := afero.WriteFile(upper, "/etc/motd", []byte("upper"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(lower, "/bin/sh", []byte("#!/bin/sh"), 0755); err != nil {
		t.Fatal(err)
	}

	mountpoint := filepath.Join(t.TempDir(), "mount")
	server, err := Mount(Options{Mountpoint: mountpoint, FS: fs})
	if err != nil {
		t.Skipf("skipping: cannot mount: %v", err)
	}
	t.Cleanup(func() { server.Unmount() })

	info, err := os.Stat(filepath.Join(mountpoint, "bin", "sh"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != int64(len("#!/bin/sh")) || info.Mode().Perm() != 0755 {
		t.Errorf("bin/sh = %d bytes, mode %v", info.Size(), info.Mode())
	}

	if _, err := os.Stat(filepath.Join(mountpoint, "etc", "missing")); !os.IsNotExist(err) {
		t.Errorf("Stat(missing) = %v, want not exist", err)
	}
}
