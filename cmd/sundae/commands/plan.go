package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	var contentRoot string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the changes a deploy would make",
		Long: `Resolve declared resources against recorded state and the backend,
compute the infrastructure plan and the content diff, and evaluate
policies. Nothing is changed.

Resolution may repair recorded state: bindings whose physical object is
gone are dropped, and unambiguous pre-existing objects are adopted.`,
		Example: `  # Preview the selected environment
  sundae plan

  # Preview a specific environment as JSON
  sundae plan --env production --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, contentRoot)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().Str("environment", a.cfg.Name).Msg("Computing plan")

			// Refresh the environment's rendered backend input, the
			// CI-diffable artifact mirroring what this plan targets.
			if _, err := environ.WriteRendered(filepath.Join(statePath, "rendered"), a.cfg); err != nil {
				return err
			}

			preview, err := a.pipeline.Plan(ctx, &a.cfg, a.runContext())
			if err != nil {
				// A denied plan still renders; the operator needs to see
				// what was rejected and why.
				var denied *pipeline.PolicyDeniedError
				if !errors.As(err, &denied) || preview == nil {
					return err
				}
			}

			if jsonOutput {
				if jsonErr := printJSON(preview); jsonErr != nil {
					return jsonErr
				}
				return err
			}

			fmt.Printf("Environment: %s\n\n", preview.Environment)
			renderPlan(preview.Plan)
			if preview.SyncPlan != nil && !preview.SyncPlan.IsEmpty() {
				fmt.Printf("Content: %s\n", preview.SyncPlan.Summary())
			}
			if preview.Policy != nil && (len(preview.Policy.Violations) > 0 || len(preview.Policy.Warnings) > 0) {
				fmt.Printf("\nPolicy:\n")
				renderPolicy(preview.Policy)
			}

			return err
		},
	}

	cmd.Flags().StringVar(&contentRoot, "content", "public", "site content directory")

	return cmd
}
