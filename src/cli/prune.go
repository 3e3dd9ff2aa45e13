package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	dir "session-backup/src/backend/directory"
	"session-backup/src/backup"
	"session-backup/src/lock"
	"session-backup/src/retention"
	"session-backup/src/safety"
)

func newPruneCmd(stdout, stderr io.Writer) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest snapshots, keeping the newest N",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = e.MaxBackups
			}
			if keep < 0 {
				return errors.New("--keep must be >= 0")
			}
			root := e.Layout.BackupRoot
			names, err := dir.SnapshotNames(root)
			if err != nil {
				return err
			}
			toDelete := retention.Plan(names, keep, "")

			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tACTION")
			for _, n := range toDelete {
				fmt.Fprintf(tw, "%s\tdelete\n", n)
			}
			_ = tw.Flush()

			opts := getSafetyOptions(cmd)
			if opts.DryRun || len(toDelete) == 0 {
				return nil
			}
			ok, err := safety.Confirm(opts, cmd.InOrStdin(), stdout, fmt.Sprintf("Delete %d snapshots?", len(toDelete)))
			if err != nil || !ok {
				return err
			}
			lk, err := lock.Acquire(filepath.Join(root, backup.LockFileName))
			if err != nil {
				return err
			}
			defer func() {
				if err := lk.Release(); err != nil {
					e.Logger.Warn("failed to release backup lock", "error", err)
				}
			}()
			// Re-plan under the lock; only snapshots the user confirmed are removed.
			names, err = dir.SnapshotNames(root)
			if err != nil {
				return err
			}
			toDelete = confirmedOnly(retention.Plan(names, keep, ""), toDelete)
			removed, failures := retention.Apply(root, toDelete, nil, e.Logger)
			fmt.Fprintf(stdout, "Deleted %d snapshots\n", len(removed))
			if len(failures) > 0 {
				errs := make([]error, 0, len(failures))
				for _, f := range failures {
					errs = append(errs, f)
				}
				return fmt.Errorf("prune: %d snapshots could not be removed: %w", len(failures), errors.Join(errs...))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "Number of recent snapshots to keep (default: max_backups setting)")
	return cmd
}

func confirmedOnly(planned, confirmed []string) []string {
	var out []string
	for _, n := range planned {
		if slices.Contains(confirmed, n) {
			out = append(out, n)
		}
	}
	return out
}
