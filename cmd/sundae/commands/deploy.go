package commands

import (
	"fmt"
	"time"

	"github.com/opensundae/opensundae/pkg/pipeline"
	"github.com/opensundae/opensundae/pkg/site"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newDeployCommand() *cobra.Command {
	var contentRoot string

	cmd := &cobra.Command{
		Use:     "deploy",
		Aliases: []string{"apply"},
		Short:   "Deploy infrastructure and content for an environment",
		Long: `Run the full deployment pipeline: validate the declared resources,
reconcile infrastructure, sync content to the origin, invalidate the
CDN, and verify the site answers.

Content is snapshotted before sync; a failed sync rolls the content
back automatically. A failed infrastructure apply keeps what was
applied so the next plan picks up from there.`,
		Example: `  # Deploy the selected environment
  sundae deploy

  # Deploy to production without a prompt (CI)
  sundae deploy --env production --non-interactive

  # Deploy content from a custom build directory
  sundae deploy --content dist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, contentRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().Str("environment", a.cfg.Name).Msg("Starting deploy")

			result, err := a.pipeline.Deploy(ctx, &a.cfg, a.runContext())
			if result != nil {
				if jsonOutput {
					if jsonErr := printJSON(result); jsonErr != nil {
						return jsonErr
					}
				} else {
					renderResult(result)
					if err == nil {
						fmt.Printf("\nSite: %s\n", site.SiteURL(a.cfg))
					}
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&contentRoot, "content", "public", "site content directory")

	return cmd
}

// renderResult prints a finished run in human form.
func renderResult(result *pipeline.Result) {
	fmt.Printf("\nRun %s: %s (%s)\n", result.RunID, result.Status, result.Duration.Round(time.Millisecond))
	if result.Apply != nil {
		fmt.Printf("  Infrastructure: %d change(s) applied, %d unchanged\n", len(result.Apply.Applied), result.Apply.Skipped)
	}
	if result.Sync != nil {
		fmt.Printf("  Content: %d uploaded, %d updated, %d deleted (%d bytes)\n",
			result.Sync.Created, result.Sync.Updated, result.Sync.Deleted, result.Sync.BytesUploaded)
	}
	if result.Invalidation != nil {
		fmt.Printf("  Invalidation: %s (%d path(s))\n", result.PollStatus, len(result.Invalidation.Paths))
	}
	if result.Verify != nil {
		if result.Verify.Reachable {
			fmt.Printf("  Verified: %s answers\n", result.Verify.URL)
		} else {
			fmt.Printf("  Verification: %s not reachable after %d probe(s)\n", result.Verify.URL, result.Verify.Attempts)
		}
	}
	for _, warning := range result.Warnings {
		fmt.Printf("  Warning: %s\n", warning)
	}
}
