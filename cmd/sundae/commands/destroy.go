package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newDestroyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down an environment's infrastructure",
		Long: `Destroy the environment's provisioned resources in reverse dependency
order. Protected resources (the DNS zone and the certificate) are kept;
their bindings survive for the next deploy.

The destroy plan goes through the same confirmation gate and policy
evaluation as a deploy.`,
		Example: `  # Tear down the selected environment
  sundae destroy

  # Tear down a named environment without a prompt
  sundae destroy --env staging --auto-approve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info().Str("environment", a.cfg.Name).Msg("Starting destroy")

			result, err := a.pipeline.Destroy(ctx, &a.cfg, a.runContext())
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

	return cmd
}
