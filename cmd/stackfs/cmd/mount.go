package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/absfs/stackfs/fusefs"
)

const allowOtherFlag = "allow-other"

var mountCmd = &cobra.Command{
	Use:   "mount MOUNTPOINT",
	Short: "Mount the union over FUSE until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		fs, err := openFS(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer fs.Close()

		server, err := fusefs.Mount(fusefs.Options{
			Mountpoint: args[0],
			FS:         fs,
			AllowOther: viper.GetBool(allowOtherFlag),
			Logger:     logger,
		})
		if err != nil {
			return err
		}

		go func() {
			<-cmd.Context().Done()
			if err := server.Unmount(); err != nil {
				logger.Error("unmount failed", "mountpoint", args[0], "error", err)
			}
		}()

		server.Wait()
		logger.Info("unmounted", "mountpoint", args[0])
		return nil
	},
}

func init() {
	mountCmd.Flags().Bool(allowOtherFlag, false, "Allow other users to access the mount")

	if err := viper.BindPFlags(mountCmd.Flags()); err != nil {
		panic(err)
	}
}
