package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath     string
	envName        string
	statePath      string
	providerName   string
	policyDirs     []string
	nonInteractive bool
	autoApprove    bool
	verbose        bool
	jsonOutput     bool

	// buildVersion is the binary version, for telemetry identification.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sundae",
		Short: "OpenSundae - Static Site Deployment Orchestrator",
		Long: `OpenSundae deploys statically-hosted web properties end to end: it
reconciles declarative cloud resources, syncs content to the origin,
invalidates the CDN, and verifies the site answers.

A deploy is one pipeline run:
  validate -> init -> plan -> apply -> sync -> invalidate -> verify

State (bindings, snapshots, runs, locks, events) lives in a local SQLite
store. Every run is recorded, every content sync is snapshotted first,
and one environment runs at most one pipeline at a time.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "environments.yaml", "environment registry file")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "environment to operate on (default: the selected one)")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", ".sundae", "state directory")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "local", "content storage provider (local, sftp)")
	rootCmd.PersistentFlags().StringArrayVar(&policyDirs, "policy-dir", nil, "additional policy directories (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "assume no operator is present; bypass the confirmation gate")
	rootCmd.PersistentFlags().BoolVar(&autoApprove, "auto-approve", false, "apply the plan without asking for confirmation")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newEnvsCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newRollbackCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newOutputCommand())
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newSnapshotsCommand())

	return rootCmd
}
