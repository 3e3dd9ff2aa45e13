package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"session-backup/src/backup"
	"session-backup/src/index"
	"session-backup/src/safety"
)

// ErrIndexChanged is returned when the index is modified between the preview
// and the rewrite.
var ErrIndexChanged = errors.New("active-sessions index changed since preview; run dedupe again")

func newDedupeCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Mark duplicate active sessions as completed, keeping the newest per agent/project/branch",
		Long: "Rewrites the active-sessions index so each agent/project/branch has at most one\n" +
			"active session. A full snapshot is taken before the index is rewritten.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			path := e.Layout.CurrentSessionsFile
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(stdout, "No active-sessions index found at %s\n", path)
				return nil
			}
			if err != nil {
				return err
			}

			plan := index.Dedupe(index.Parse(data))
			fmt.Fprintf(stdout, "Found %d active sessions\n", plan.ActiveBefore())
			if len(plan.Retired) == 0 {
				fmt.Fprintln(stdout, "No duplicate active sessions")
				return nil
			}

			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tPROJECT\tBRANCH\tACTION")
			for _, b := range plan.Retired {
				fmt.Fprintf(tw, "%s\t%s\t%s\tcomplete\n", b.Session, filepath.Base(b.Project), b.Branch)
			}
			_ = tw.Flush()

			opts := getSafetyOptions(cmd)
			if opts.DryRun {
				return nil
			}
			ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout, fmt.Sprintf("Mark %d sessions as completed?", len(plan.Retired)))
			if err != nil || !ok {
				return err
			}

			bopts := backup.OptionsFromLayout(e.Layout, e.MaxBackups)
			bopts.Out = stdout
			bopts.Logger = e.Logger
			res, err := backup.NewManager(bopts).Create()
			if err != nil {
				return fmt.Errorf("snapshot before dedupe: %w", err)
			}
			if res == nil {
				return errors.New("no snapshot was taken; refusing to rewrite the index")
			}

			cur, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if !bytes.Equal(cur, data) {
				return ErrIndexChanged
			}
			if err := index.WriteFile(path, plan.Render(time.Now())); err != nil {
				return err
			}
			e.Logger.Info("deduplicated active sessions", "retired", len(plan.Retired), "snapshot", res.Name)
			fmt.Fprintf(stdout, "Marked %d sessions as completed; %d remain active\n", len(plan.Retired), len(plan.Active))
			return nil
		},
	}
}
