package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/terrazzo-io/tzctl/pkg/deploy"
)

func newForceUnlockCmd() *cobra.Command {
	var (
		environment   string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "force-unlock",
		Short: "Forcibly release an environment's lock",
		Long: `Force-unlock clears the environment's lock when the holder died without
releasing it.

The takeover is stamped into the environment's state: the next apply will
demand a fresh plan, because the world may have changed while the lock was
held.

Examples:
  tzctl force-unlock -e staging`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rc, err := newRunContext(backendType, backendConfig)
			if err != nil {
				return err
			}

			st, err := rc.state.GetEnvironment(ctx, rc.cfg.Name, environment)
			if err != nil {
				return err
			}
			if st.ActiveLock == nil {
				fmt.Printf("Environment %q is not locked.\n", environment)
				return nil
			}

			age := time.Since(st.ActiveLock.AcquiredAt).Round(time.Second)
			fmt.Printf("Releasing lock held by run %s (held for %s)...\n", st.ActiveLock.RunID, age)

			locks := deploy.NewLockManager(rc.state)
			if err := locks.ForceUnlock(ctx, rc.cfg.Name, environment, time.Now().UTC()); err != nil {
				return err
			}

			fmt.Println("Lock released. Re-run plan before the next apply.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}
