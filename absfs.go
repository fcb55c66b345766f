package stackfs

import (
	"os"

	"github.com/absfs/absfs"
)

type lstater interface {
	Lstat(name string) (os.FileInfo, error)
}

// NewAbsBranch returns a branch backed by an absfs filesystem. Symlinks are
// not followed when the filesystem can Lstat.
//
// Example:
//
//	mfs, _ := memfs.NewFS()
//	fs, err := stackfs.New(ctx,
//	    stackfs.WithBranch(stackfs.NewAbsBranch(upper)),
//	    stackfs.WithBranch(stackfs.NewAbsBranch(mfs)),
//	)
func NewAbsBranch(fsys absfs.Filer) Branch {
	stat := fsys.Stat
	if l, ok := fsys.(lstater); ok {
		stat = l.Lstat
	}
	return newPathBranch(func(name string) (Attr, error) {
		info, err := stat(name)
		if err != nil {
			return Attr{}, err
		}
		return attrFromInfo(info), nil
	})
}
