package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/opensundae/opensundae/pkg/site"
	"github.com/opensundae/opensundae/pkg/stores"
	"github.com/spf13/cobra"
)

func newOutputCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "output",
		Short: "Show an environment's bound resources and site URL",
		Long: `Print the logical-address-to-physical-object bindings recorded for an
environment, plus the site URL derived from its domain.`,
		Example: `  # Outputs for the selected environment
  sundae output

  # Outputs for production, as JSON for scripting
  sundae output --env production --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newStoreApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			bindings, err := a.store.ListBindings(ctx, a.cfg.Name)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(struct {
					Environment string            `json:"environment"`
					SiteURL     string            `json:"site_url"`
					Bindings    []*stores.Binding `json:"bindings"`
				}{Environment: a.cfg.Name, SiteURL: site.SiteURL(a.cfg), Bindings: bindings})
			}

			fmt.Printf("Environment: %s\n", a.cfg.Name)
			fmt.Printf("Site URL:    %s\n", site.SiteURL(a.cfg))

			if len(bindings) == 0 {
				fmt.Println("\nNo resources bound yet (run: sundae deploy)")
				return nil
			}

			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tPHYSICAL ID\tUPDATED")
			for _, b := range bindings {
				fmt.Fprintf(w, "%s\t%s\t%s\n", b.Address, b.PhysicalID, b.UpdatedAt.Local().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
