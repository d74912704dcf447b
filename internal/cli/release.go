package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/terrazzo-io/tzctl/pkg/project"
	"github.com/terrazzo-io/tzctl/pkg/release"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Inspect project releases",
	}

	cmd.AddCommand(newReleaseListCmd())

	return cmd
}

func newReleaseListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's configured releases",
		Long: `List shows the releases configured in tz.project.yml and which one would
deploy: the pinned activeRelease, else the newest configured release, else
the newest git tag.

Examples:
  tzctl release list`,
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
			active, err := release.Resolve(abs, cfg)
			if err != nil {
				return err
			}

			if len(cfg.Releases) == 0 && active == nil {
				fmt.Println("No releases configured and no git tags found.")
				return nil
			}

			for _, rel := range cfg.Releases {
				marker := " "
				if active != nil && rel.Tag == active.Tag {
					marker = "*"
				}
				image := rel.ImageRef
				if image == "" {
					image = "-"
				}
				fmt.Printf("%s %-16s %s\n", marker, rel.Tag, image)
			}
			if active != nil {
				if _, configured := cfg.Release(active.Tag); !configured {
					fmt.Printf("* %-16s (from git tag)\n", active.Tag)
				}
			}

			return nil
		},
	}

	return cmd
}
