package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRollbackCommand() *cobra.Command {
	var snapshotID string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore deployed content from a snapshot",
		Long: `Restore the deployed content tree to a recorded snapshot, then
invalidate the CDN for the restored paths and re-verify the site.

Without --snapshot the most recent snapshot is used, which is the state
captured just before the last content sync. Infrastructure is not
touched; rollback is a content operation.`,
		Example: `  # Roll back to the state before the last sync
  sundae rollback

  # Roll back to a specific snapshot (see: sundae snapshots)
  sundae rollback --snapshot 1f0c9e0a-7d3b-4f6e-9f3c-2f1a5b8c9d0e`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().
				Str("environment", a.cfg.Name).
				Str("snapshot", snapshotID).
				Msg("Starting rollback")

			result, err := a.pipeline.Rollback(ctx, &a.cfg, a.runContext(), snapshotID)
			if result != nil {
				if jsonOutput {
					if jsonErr := printJSON(result); jsonErr != nil {
						return jsonErr
					}
				} else {
					renderResult(result)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "snapshot to restore (default: the most recent)")

	return cmd
}
