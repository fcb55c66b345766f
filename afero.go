package stackfs

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// NewAferoBranch returns a branch backed by an afero filesystem
func NewAferoBranch(fsys afero.Fs) Branch {
	return newPathBranch(func(name string) (Attr, error) {
		name = filepath.FromSlash(name)
		var info os.FileInfo
		var err error
		if l, ok := fsys.(afero.Lstater); ok {
			info, _, err = l.LstatIfPossible(name)
		} else {
			info, err = fsys.Stat(name)
		}
		if err != nil {
			return Attr{}, err
		}
		return attrFromInfo(info), nil
	})
}
