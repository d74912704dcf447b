package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		environment   string
		limit         int
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show deployment run history",
		Long: `History lists the recorded deployment runs for an environment, newest
first. Records older than the retention horizon are pruned as new runs are
appended.

Examples:
  tzctl history -e prod
  tzctl history -e staging --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rc, err := newRunContext(backendType, backendConfig)
			if err != nil {
				return err
			}

			runs, err := rc.state.ListRuns(ctx, rc.cfg.Name, environment, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Printf("No runs recorded for environment %q.\n", environment)
				return nil
			}

			fmt.Printf("%-36s %-8s %-9s %-12s %-20s %s\n", "RUN", "ACTION", "STATUS", "ACTOR", "STARTED", "SUMMARY")
			for _, run := range runs {
				summary := "-"
				if run.Summary != nil {
					summary = fmt.Sprintf("+%d ~%d -%d", run.Summary.Add, run.Summary.Change, run.Summary.Destroy)
				}
				actor := run.Actor
				if actor == "" {
					actor = "-"
				}
				fmt.Printf("%-36s %-8s %-9s %-12s %-20s %s\n",
					run.ID, run.Action, run.Status, actor,
					run.StartedAt.UTC().Format(time.RFC3339), summary)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}
