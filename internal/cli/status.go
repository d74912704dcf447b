package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/terrazzo-io/tzctl/pkg/schema/template"
	"github.com/terrazzo-io/tzctl/pkg/state/types"
)

func newStatusCmd() *cobra.Command {
	var (
		environment   string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded environment status",
		Long: `Status shows the recorded deployment state of the project's environments:
last known health, plan freshness, drift flags and active locks. It reads
only the state backend; use report to inspect real infrastructure.

Examples:
  tzctl status
  tzctl status -e prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rc, err := newRunContext(backendType, backendConfig)
			if err != nil {
				return err
			}

			envs := rc.tpl.Environments
			if environment != "" {
				env, ok := rc.tpl.Environment(environment)
				if !ok {
					return fmt.Errorf("environment %q is not declared by the deploy template", environment)
				}
				envs = []template.Environment{env}
			}

			fmt.Printf("Project: %s\n\n", rc.cfg.Name)
			fmt.Printf("%-12s %-10s %-8s %-22s %s\n", "ENVIRONMENT", "STATUS", "DRIFT", "LAST PLAN", "LOCK")
			for _, env := range envs {
				st, err := rc.state.GetEnvironment(ctx, rc.cfg.Name, env.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %-10s %-8t %-22s %s\n",
					env.ID, statusOrUnknown(st.LastStatus), st.LastPlanDriftDetected,
					formatTime(st.LastPlanAt), formatLock(st.ActiveLock))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Limit to one environment")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")

	return cmd
}

func statusOrUnknown(s types.EnvironmentStatus) types.EnvironmentStatus {
	if s == "" {
		return types.EnvironmentStatusUnknown
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatLock(lock *types.ActiveLock) string {
	if lock == nil {
		return "-"
	}
	return fmt.Sprintf("held by %s since %s", lock.RunID, lock.AcquiredAt.UTC().Format(time.RFC3339))
}
