package cli

import (
	"io"

	"github.com/spf13/cobra"

	"session-backup/src/backup"
)

func newBackupCmd(stdout, stderr io.Writer) *cobra.Command {
	var showProgress bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the session store now and prune old snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			opts := backup.OptionsFromLayout(e.Layout, e.MaxBackups)
			opts.Out = stdout
			opts.Logger = e.Logger
			if showProgress {
				opts.Progress = stderr
			}
			_, err = backup.NewManager(opts).Create()
			return err
		},
	}
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show per-file copy progress on stderr")
	return cmd
}
