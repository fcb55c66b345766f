package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/absfs/stackfs"
)

const (
	verboseFlag        = "verbose"
	branchFlag         = "branch"
	absenceTTLFlag     = "absence-ttl"
	absenceEntriesFlag = "absence-entries"
)

var rootCmd = &cobra.Command{
	Use:   "stackfs",
	Short: "stackfs, a stackable union filesystem",
	Long: `stackfs unions several directories into one tree.

Branches are given highest priority first: a name present on the first
branch hides the same name on every later branch.`,
	SilenceUsage: true,
}

// Execute runs the command line with ctx cancelled on SIGINT or SIGTERM
func Execute(ctx context.Context) error {
	rootCmd.PersistentFlags().BoolP(verboseFlag, "v", false, "Log lookup decisions at debug level")
	rootCmd.PersistentFlags().StringSliceP(branchFlag, "b", nil, "Branch directory, highest priority first (repeatable)")
	rootCmd.PersistentFlags().Duration(absenceTTLFlag, stackfs.DefaultAbsenceTTL, "How long a cached absence is trusted")
	rootCmd.PersistentFlags().Int(absenceEntriesFlag, stackfs.DefaultAbsenceEntries, "Cached absences per branch (0 disables the cache)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return err
	}

	viper.SetEnvPrefix("stackfs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(mountCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool(verboseFlag) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openFS builds the union from the configured branch directories
func openFS(ctx context.Context, logger *slog.Logger) (*stackfs.FS, error) {
	dirs := viper.GetStringSlice(branchFlag)
	if len(dirs) == 0 {
		return nil, fmt.Errorf("at least one --%s is required", branchFlag)
	}

	entries := viper.GetInt(absenceEntriesFlag)
	opts := []stackfs.Option{
		stackfs.WithLogger(logger),
		stackfs.WithAbsenceCache(entries > 0, viper.GetDuration(absenceTTLFlag), entries),
	}
	for _, dir := range dirs {
		b, err := newBranch(dir)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", dir, err)
		}
		opts = append(opts, stackfs.WithBranch(b))
	}
	return stackfs.New(ctx, opts...)
}
