package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/opensundae/opensundae/pkg/stores"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest run for an environment",
		Long: `Show a run's status, its per-stage outcomes, and its recent events.
Without --run the environment's latest run is shown.`,
		Example: `  # Status of the selected environment's latest run
  sundae status

  # Status of a specific run
  sundae status --run 1f0c9e0a-7d3b-4f6e-9f3c-2f1a5b8c9d0e`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newStoreApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var run *stores.Run
			if runID != "" {
				run, err = a.store.GetRun(ctx, runID)
			} else {
				run, err = a.store.GetLatestRun(ctx, a.cfg.Name)
			}
			if err != nil {
				return err
			}
			if run == nil {
				fmt.Printf("No runs recorded for environment %s\n", a.cfg.Name)
				return nil
			}

			stages, err := a.store.ListRunStages(ctx, run.ID)
			if err != nil {
				return err
			}
			events, err := a.store.ListEvents(ctx, &run.ID, nil, nil, 10, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(struct {
					Run    *stores.Run           `json:"run"`
					Stages []*stores.StageRecord `json:"stages"`
					Events []*stores.Event       `json:"events"`
				}{Run: run, Stages: stages, Events: events})
			}

			fmt.Printf("Environment: %s\n", run.Environment)
			fmt.Printf("Run:         %s\n", run.ID)
			fmt.Printf("Status:      %s\n", run.Status)
			fmt.Printf("Started:     %s\n", run.StartedAt.Local().Format(time.RFC3339))
			if run.CompletedAt != nil {
				fmt.Printf("Duration:    %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
			} else {
				fmt.Printf("Stage:       %s (in progress)\n", run.Stage)
			}
			if run.Error != nil {
				fmt.Printf("Error:       %s\n", *run.Error)
			}

			if len(stages) > 0 {
				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STAGE\tSTATUS\tATTEMPTS\tDURATION\tERROR")
				for _, stage := range stages {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						stage.Stage, stage.Status, stage.Attempts, stageDuration(stage), stageError(stage))
				}
				w.Flush()
			}

			// Only the noteworthy events; the full trail is in the store.
			printed := false
			for _, ev := range events {
				if ev.Level != stores.EventLevelWarning && ev.Level != stores.EventLevelError {
					continue
				}
				if !printed {
					fmt.Println()
					printed = true
				}
				fmt.Printf("  [%s] %s\n", ev.Level, ev.Message)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show a specific run instead of the latest")

	return cmd
}

func stageDuration(stage *stores.StageRecord) string {
	if stage.StartedAt == nil || stage.CompletedAt == nil {
		return "-"
	}
	return stage.CompletedAt.Sub(*stage.StartedAt).Round(time.Millisecond).String()
}

func stageError(stage *stores.StageRecord) string {
	if stage.Error == nil {
		return ""
	}
	return *stage.Error
}
