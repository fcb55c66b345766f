//go:build !linux

package cmd

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/absfs/stackfs"
)

func newBranch(dir string) (stackfs.Branch, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return stackfs.NewAferoBranch(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}
