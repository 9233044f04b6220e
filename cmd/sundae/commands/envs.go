package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/spf13/cobra"
)

func newEnvsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envs",
		Short: "Manage environment configurations",
		Long: `Inspect, validate, and select environments from the registry.

The selected environment is the default target for plan, deploy, and the
other pipeline commands; --env overrides it per invocation.`,
	}

	cmd.AddCommand(newEnvsListCommand())
	cmd.AddCommand(newEnvsSelectCommand())
	cmd.AddCommand(newEnvsValidateCommand())

	return cmd
}

func newEnvsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			registry, err := loadRegistry()
			if err != nil {
				return err
			}

			// The current selection lives in the store; a missing store
			// just means nothing is selected yet.
			current := ""
			if store, err := openStore(ctx); err == nil {
				current, _ = store.GetCurrentEnvironment(ctx)
				store.Close()
			}

			if jsonOutput {
				return printJSON(struct {
					Current      string                      `json:"current,omitempty"`
					Environments []environ.EnvironmentConfig `json:"environments"`
				}{Current: current, Environments: registry.List()})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  \tNAME\tDOMAIN\tBUCKET\tREGION")
			for _, cfg := range registry.List() {
				marker := " "
				if cfg.Name == current {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, cfg.Name, cfg.Domain, cfg.StorageBucketName, cfg.Region)
			}
			return w.Flush()
		},
	}
}

func newEnvsSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <name>",
		Short: "Select the environment pipeline commands target by default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			cfg, err := registry.Select(ctx, store, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("✓ Selected environment: %s (%s)\n", cfg.Name, cfg.Domain)
			return nil
		},
	}
}

func newEnvsValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every environment in the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load already rejects registries with error-severity
			// violations; this pass surfaces warnings too.
			registry, err := loadRegistry()
			if err != nil {
				return err
			}

			var all environ.ValidationErrors
			for _, cfg := range registry.List() {
				violations := registry.Validate(cfg)
				if len(violations) == 0 {
					fmt.Printf("✓ %s\n", cfg.Name)
					continue
				}
				fmt.Printf("✗ %s\n", cfg.Name)
				for _, v := range violations {
					fmt.Printf("    %s: %s (%s)\n", v.Field, v.Message, v.Severity)
				}
				all = append(all, violations...)
			}

			if all.HasErrors() {
				return all
			}
			return nil
		},
	}
}
