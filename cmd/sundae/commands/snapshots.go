package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSnapshotsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List content snapshots for an environment",
		Long: `List the recorded content snapshots, newest first. Every deploy that
changes content takes one just before syncing; rollback restores one.`,
		Example: `  # Snapshots of the selected environment
  sundae snapshots

  # The last three production snapshots
  sundae snapshots --env production --limit 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newStoreApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			snapshots, err := a.store.ListSnapshots(ctx, a.cfg.Name, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(snapshots)
			}

			if len(snapshots) == 0 {
				fmt.Printf("No snapshots recorded for environment %s\n", a.cfg.Name)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tITEMS\tBYTES\tNOTE")
			for _, snap := range snapshots {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					snap.ID, snap.CreatedAt.Local().Format(time.RFC3339), snap.ItemCount, snap.TotalBytes, snap.Note)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum snapshots to list")

	return cmd
}
