package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var (
		environment   string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the changes a deploy would make",
		Long: `Plan previews what applying the deploy template to an environment would
change, without touching any infrastructure. The environment is locked for
the duration of the plan.

A fresh plan is required before applying to prod.

Examples:
  tzctl plan -e staging
  tzctl plan -e prod --project ./services/api`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rc, err := newRunContext(backendType, backendConfig)
			if err != nil {
				return err
			}
			orch, err := rc.orchestratorFor(environment)
			if err != nil {
				return err
			}

			fmt.Printf("Project:     %s\n", rc.cfg.Name)
			fmt.Printf("Environment: %s\n", environment)
			fmt.Println()

			outcome, err := orch.Plan(ctx, rc.cfg.Name, environment)
			if err != nil {
				return err
			}

			for _, change := range outcome.PlannedChanges {
				fmt.Printf("  %-8s %s\n", strings.Join(change.Actions, ","), change.Address)
			}
			if len(outcome.PlannedChanges) > 0 {
				fmt.Println()
			}

			printDiagnostics(outcome.Warnings, outcome.Errors)

			fmt.Printf("Plan: %d to add, %d to change, %d to destroy.\n",
				outcome.Summary.Add, outcome.Summary.Change, outcome.Summary.Destroy)
			if outcome.Drift {
				fmt.Println()
				fmt.Println("Drift detected: real infrastructure no longer matches the recorded state.")
			}

			return adapterFailure("plan", outcome.Errors)
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}
