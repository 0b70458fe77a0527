package commands

import (
	"github.com/spf13/cobra"

	"github.com/fixhub/fixhub/internal/cli/ui"
	"github.com/fixhub/fixhub/internal/config"
	"github.com/fixhub/fixhub/internal/web/router"
)

// NewRoutesCommand prints the HTTP routes served by `fixhub serve`
func NewRoutesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the HTTP routes of the entity API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			handler := router.New(router.Config{APIPrefix: cfg.Server.APIPrefix})

			table := ui.NewTable(cmd.OutOrStdout(), flags.noColor, "Method", "Path", "Permission")
			for _, r := range router.Routes(handler) {
				table.AddRow(r.Method, r.Pattern, router.PermissionFor(r.Method, r.Pattern))
			}
			table.Render()
			return nil
		},
	}
}
