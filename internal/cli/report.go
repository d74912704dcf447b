package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/terrazzo-io/tzctl/pkg/deploy"
)

func newReportCmd() *cobra.Command {
	var (
		environment   string
		watch         bool
		intervalMs    int
		maxCycles     int
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report the real state of an environment",
		Long: `Report inspects the environment's real infrastructure and refreshes the
recorded status. It takes no lock, so it stays usable while another action
is running or when a lock is stuck.

With --watch the report repeats up to --max-cycles times, pausing
--interval milliseconds between cycles.

Examples:
  tzctl report -e staging
  tzctl report -e prod --watch --interval 5000 --max-cycles 12`,
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

			if watch {
				return orch.ReportWatch(ctx, rc.cfg.Name, environment, deploy.WatchOptions{
					Interval:  time.Duration(intervalMs) * time.Millisecond,
					MaxCycles: maxCycles,
					OnCycle: func(cycle int, outcome *deploy.ReportOutcome, err error) bool {
						if err != nil {
							fmt.Printf("[%d/%d] report failed: %v\n", cycle, maxCycles, err)
							return true
						}
						fmt.Printf("[%d/%d] status=%s drift=%t\n", cycle, maxCycles, outcome.Status, outcome.Drift)
						return true
					},
				})
			}

			outcome, err := orch.Report(ctx, rc.cfg.Name, environment)
			if err != nil {
				return err
			}

			printDiagnostics(outcome.Warnings, outcome.Errors)

			fmt.Printf("Environment: %s\n", environment)
			fmt.Printf("Status:      %s\n", outcome.Status)
			fmt.Printf("Drift:       %t\n", outcome.Drift)

			return adapterFailure("report", outcome.Errors)
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll the environment repeatedly")
	cmd.Flags().IntVar(&intervalMs, "interval", 10000, "Milliseconds between watch cycles")
	cmd.Flags().IntVar(&maxCycles, "max-cycles", 6, "Number of watch cycles")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}
