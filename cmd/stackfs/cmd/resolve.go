package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/absfs/stackfs"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve PATH...",
	Short: "Show which branch each path resolves to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		fs, err := openFS(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer fs.Close()

		for _, p := range args {
			d, err := fs.Resolve(cmd.Context(), p, stackfs.IntentNone)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", p, err)
			}
			printResolution(cmd.OutOrStdout(), fs, p, d)
			if d != nil {
				d.Release()
			}
		}
		return nil
	},
}

func printResolution(w io.Writer, fs *stackfs.FS, p string, d *stackfs.Dentry) {
	if d == nil {
		fmt.Fprintf(w, "%s: not found\n", p)
		return
	}
	inode := d.Inode()

	slots := make([]string, fs.BranchCount())
	for i := range slots {
		lp, ok := d.LowerPath(i)
		switch {
		case !ok:
			slots[i] = "-"
		case lp.Dentry.IsNegative():
			slots[i] = "negative"
		default:
			slots[i] = "positive"
		}
	}
	fmt.Fprintf(w, "%s: branch=%d ino=%d type=%s slots=[%s]\n",
		p, inode.Anchor(), inode.Ino(), inode.Type(), strings.Join(slots, " "))
}
