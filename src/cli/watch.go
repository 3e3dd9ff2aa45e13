package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"session-backup/src/backup"
	"session-backup/src/watch"
)

func newWatchCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Back up the session store whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			if d, _ := cmd.Flags().GetDuration("debounce"); cmd.Flags().Changed("debounce") {
				e.Debounce = d
			}
			opts := backup.OptionsFromLayout(e.Layout, e.MaxBackups)
			opts.Out = stdout
			opts.Logger = e.Logger
			m := backup.NewManager(opts)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := watch.New(e.Layout.SessionsDir, e.Debounce, watch.SessionFiles, func(context.Context) error {
				_, err := m.Create()
				return err
			}, e.Logger)
			return w.Run(ctx)
		},
	}
	cmd.Flags().Duration("debounce", 0, "Quiet period before a backup is taken (default: watch.debounce setting)")
	return cmd
}
