package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terrazzo-io/tzctl/pkg/deploy"
	"github.com/terrazzo-io/tzctl/pkg/errors"
)

func newApplyCmd() *cobra.Command {
	var (
		environment   string
		allowDrift    bool
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the deploy template to an environment",
		Long: `Apply provisions an environment per the deploy template.

Applying to prod requires a plan fresher than the configured window, and a
plan that detected drift blocks prod applies until the drift is acknowledged
with --allow-drift. An environment that was force-unlocked must be re-planned
before it can be applied.

Examples:
  tzctl apply -e staging
  tzctl apply -e prod
  tzctl apply -e prod --allow-drift`,
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
			if rc.rel != nil {
				fmt.Printf("Release:     %s\n", rc.rel.Tag)
			}
			fmt.Println()

			outcome, err := orch.Apply(ctx, rc.cfg.Name, environment, deploy.ApplyOptions{
				AllowDrift: allowDrift,
			})
			if err != nil {
				if remedy := errors.Remediation(err); remedy != "" {
					return fmt.Errorf("%w\n\nRemediation: %s", err, remedy)
				}
				return err
			}

			printDiagnostics(outcome.Warnings, outcome.Errors)

			fmt.Printf("Apply complete: %d added, %d changed, %d destroyed.\n",
				outcome.Summary.Add, outcome.Summary.Change, outcome.Summary.Destroy)
			fmt.Printf("Environment status: %s\n", outcome.Status)

			return adapterFailure("apply", outcome.Errors)
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().BoolVar(&allowDrift, "allow-drift", false, "Acknowledge detected drift when applying to prod")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}
