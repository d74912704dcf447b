package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terrazzo-io/tzctl/pkg/contract"
	"github.com/terrazzo-io/tzctl/pkg/project"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect and validate deploy templates",
	}

	cmd.AddCommand(newTemplateValidateCmd())

	return cmd
}

func newTemplateValidateCmd() *cobra.Command {
	var contracts bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project's deploy template",
		Long: `Validate parses the deploy template and checks its structural rules:
identifier formats, unique ids, provider and environment references, and
preset coverage for every environment.

With --contracts the providers' driver sources are additionally scanned to
verify every declared environment output is actually produced.

Examples:
  tzctl template validate
  tzctl template validate --contracts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := viper.GetString("project")
			if dir == "" {
				dir = "."
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			cfg, err := project.Load(abs)
			if err != nil {
				return err
			}
			tpl, err := loadTemplate(abs, cfg.Type)
			if err != nil {
				return err
			}

			fmt.Printf("Template: %s\n", tpl.SourcePath)
			fmt.Printf("  %d providers, %d environments, %d presets\n",
				len(tpl.Providers), len(tpl.Environments), len(tpl.Presets))
			for _, env := range tpl.Environments {
				presets := tpl.CompatiblePresets(env.ID)
				ids := make([]string, 0, len(presets))
				for _, p := range presets {
					ids = append(ids, p.ID)
				}
				fmt.Printf("  %s: provider=%s presets=%s\n", env.ID, env.ProviderID, strings.Join(ids, ","))
			}
			fmt.Println()
			fmt.Println("Template is valid.")

			if !contracts {
				return nil
			}

			validator := contract.NewValidator(tpl, filepath.Dir(tpl.SourcePath))
			result, err := validator.ValidateAll()
			if err != nil {
				return err
			}
			for _, warning := range result.Warnings {
				fmt.Printf("[warning] %s\n", warning)
			}
			fmt.Println("Output contracts are satisfied.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&contracts, "contracts", false, "Also verify provider output contracts against driver sources")

	return cmd
}
