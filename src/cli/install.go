package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"session-backup/src/assets"
	"session-backup/src/audit"
	"session-backup/src/install"
)

func newInstallCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install or upgrade hooks, slash commands and the config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			guard, err := audit.New(e.Layout)
			if err != nil {
				return err
			}
			opts := getSafetyOptions(cmd)
			rep, err := install.New(e.Layout, install.Options{
				Assets: assets.Files,
				Guard:  guard,
				Out:    stdout,
				Logger: e.Logger,
				DryRun: opts.DryRun,
			}).Run()
			if err != nil {
				return err
			}
			verb := "Installed"
			if opts.DryRun {
				verb = "Would install"
			}
			fmt.Fprintf(stdout, "%s %d hooks and %d commands (%d unchanged)\n", verb, len(rep.Hooks), len(rep.Commands), len(rep.Unchanged))
			return nil
		},
	}
}
