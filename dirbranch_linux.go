//go:build linux

package stackfs

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// NewDirBranch returns a branch over a host directory. Objects carry the
// real inode and device numbers, and the branch revalidates cached names by
// re-statting them.
func NewDirBranch(root string) (Branch, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return newPathBranch(func(name string) (Attr, error) {
		return lstatHost(filepath.Join(root, filepath.FromSlash(name)))
	}), nil
}

func lstatHost(name string) (Attr, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(unix.AT_FDCWD, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return Attr{}, &os.PathError{Op: "lstat", Path: name, Err: err}
	}
	return Attr{
		Ino:   st.Ino,
		Mode:  hostMode(uint32(st.Mode)),
		Size:  st.Size,
		Atime: time.Unix(st.Atim.Unix()),
		Mtime: time.Unix(st.Mtim.Unix()),
		Ctime: time.Unix(st.Ctim.Unix()),
		Rdev:  uint64(st.Rdev),
	}, nil
}

// hostMode converts a raw st_mode into an os.FileMode
func hostMode(m uint32) os.FileMode {
	mode := os.FileMode(m & 0o777)
	switch m & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= os.ModeDir
	case unix.S_IFLNK:
		mode |= os.ModeSymlink
	case unix.S_IFBLK:
		mode |= os.ModeDevice
	case unix.S_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFIFO:
		mode |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= os.ModeSocket
	}
	if m&unix.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if m&unix.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if m&unix.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}
	return mode
}
