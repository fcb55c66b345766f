//go:build linux

package cmd

import "github.com/absfs/stackfs"

func newBranch(dir string) (stackfs.Branch, error) {
	return stackfs.NewDirBranch(dir)
}
