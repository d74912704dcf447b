package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terrazzo-io/tzctl/pkg/workspace"
)

func newWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage materialized driver workspaces",
	}

	cmd.AddCommand(newWorkspaceMaterializeCmd())

	return cmd
}

func newWorkspaceMaterializeCmd() *cobra.Command {
	var (
		environment   string
		backendType   string
		backendConfig []string
	)

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize an environment's driver workspace",
		Long: `Materialize copies the provider's driver sources into the environment's
workspace directory and substitutes the deployment tokens, without running
any provisioning. Useful for inspecting exactly what a plan or apply would
hand to the driver.

Examples:
  tzctl workspace materialize -e staging`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			rc, err := newRunContext(backendType, backendConfig)
			if err != nil {
				return err
			}

			mat := workspace.NewMaterializer(rc.state, rc.tpl)
			res, err := mat.Materialize(ctx, environment, workspace.Options{
				ProjectPath: rc.projectDir,
				ProjectName: rc.cfg.Name,
				Region:      rc.cfg.Region,
				Backend:     rc.cfg.Backend,
				Release:     rc.rel,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Workspace:  %s\n", res.Dir)
			fmt.Printf("Provider:   %s (%s)\n", res.Manifest.ProviderID, res.Manifest.DriverType)
			fmt.Printf("Preset:     %s\n", res.Manifest.PresetID)
			if res.Manifest.ReleaseTag != "" {
				fmt.Printf("Release:    %s\n", res.Manifest.ReleaseTag)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Target environment (required)")
	cmd.Flags().StringVar(&backendType, "backend", "", "State backend type")
	cmd.Flags().StringArrayVar(&backendConfig, "backend-config", nil, "Backend configuration (key=value)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}
