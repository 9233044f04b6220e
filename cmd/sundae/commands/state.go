package commands

import (
	"fmt"

	"github.com/opensundae/opensundae/pkg/pipeline"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/spf13/cobra"
)

func newStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Edit recorded resource bindings",
		Long: `Surgical edits to the address-to-physical-object bindings. These exist
for two migrations that must not destroy anything: importing an object
that was provisioned outside sundae, and renaming a logical address.`,
	}

	cmd.AddCommand(newStateImportCommand())
	cmd.AddCommand(newStateMvCommand())

	return cmd
}

func newStateImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <address> <physical-id>",
		Short: "Bind a pre-existing physical object to a logical address",
		Long: `Record a binding from a logical address to a physical object that
already exists on the backend. The object is verified to exist and must
not be bound elsewhere. The observed hash is left empty, so the next
plan converges the object with an update.`,
		Example: `  # Adopt a bucket created by hand
  sundae state import storage.site storage-7c2a9f1e`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newStoreApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			binding, err := recon.ImportBinding(ctx, a.infra, pipeline.NewBindingStore(a.store),
				a.tel.Logger, a.cfg.Name, args[0], args[1])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(binding)
			}
			fmt.Printf("✓ Imported %s as %s\n", binding.PhysicalID, binding.Address)
			fmt.Println("  Run 'sundae plan' to converge the imported object.")
			return nil
		},
	}
}

func newStateMvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Rename a logical address without touching its object",
		Long: `Move a binding to a new logical address. The physical object and its
observed hash are untouched, so the rename does not cause a destroy and
recreate cycle on the next plan.`,
		Example: `  # Migrate from a positional address to a stable one
  sundae state mv dns_zone.0 dns_zone.main`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newStoreApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			binding, err := recon.MoveBinding(ctx, pipeline.NewBindingStore(a.store),
				a.tel.Logger, a.cfg.Name, args[0], args[1])
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(binding)
			}
			fmt.Printf("✓ Moved %s -> %s (physical object %s)\n", args[0], binding.Address, binding.PhysicalID)
			return nil
		},
	}
}
