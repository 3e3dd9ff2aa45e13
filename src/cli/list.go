package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"session-backup/src/backend"
	dir "session-backup/src/backend/directory"
)

func newListCmd(stdout, stderr io.Writer) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots in the backup root",
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
			entries, err := b.List()
			if err != nil {
				return err
			}
			switch output {
			case "json":
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			case "table", "":
				return renderTable(stdout, entries)
			default:
				return fmt.Errorf("unsupported --output: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func renderTable(w io.Writer, entries []backend.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTIMESTAMP\tSESSIONS\tCOMPLETE")
	for _, e := range entries {
		files := "?"
		if e.Files >= 0 {
			files = strconv.Itoa(e.Files)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", e.Name, e.Timestamp, files, e.Complete)
	}
	return tw.Flush()
}
