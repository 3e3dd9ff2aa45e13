package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	dir "session-backup/src/backend/directory"
	"session-backup/src/verify"
)

func newVerifyCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify checksums for every snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, stderr)
			if err != nil {
				return err
			}
			b, err := dir.New(e.Layout.BackupRoot)
			if err != nil {
				return err
			}
			results, err := verify.All(b)
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			case "table", "":
				tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tTIMESTAMP\tSTATUS")
				for _, r := range results {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Timestamp, r.Status)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
			bad := 0
			for _, r := range results {
				if r.Status != verify.StatusOK {
					bad++
				}
			}
			if bad > 0 {
				return fmt.Errorf("verify: %d of %d snapshots failed", bad, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}
