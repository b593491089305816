package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newPresetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the presets defined in the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(a.cfg.Presets) == 0 {
				printInfo(out, "no presets configured")
				return nil
			}

			for _, p := range a.cfg.Presets {
				title := styleTitle.Render(p.Name)
				if p.Description != "" {
					title += " " + p.Description
				}
				printInfo(out, "%s", title)
				for _, line := range strings.Split(strings.TrimSpace(p.Rules), "\n") {
					printDetail(out, "%s", line)
				}
			}
			return nil
		},
	}
}
