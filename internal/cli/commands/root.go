// Package commands implements the fixhub command line
package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fixhub/fixhub/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "fixhub",
		Short: "Work-order backend entity API",
		Long: color.CyanString(`fixhub - maintenance and work-order backend

Serves customers, technicians, work orders, invoices, contracts and inventory
through one metadata-driven entity API with row-level security, field
visibility by role, cascading deletes, batches and an audit trail.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ./fixhub.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(NewVersionCommand(flags))
	rootCmd.AddCommand(NewServeCommand(flags))
	rootCmd.AddCommand(NewMigrateCommand(flags))
	rootCmd.AddCommand(NewEntitiesCommand(flags))
	rootCmd.AddCommand(NewRoutesCommand(flags))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), flags.noColor)
			kv.AddRow("fixhub version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")
		ui.Errorf(rootCmd.ErrOrStderr(), noColor, "%v", err)
		return err
	}
	return nil
}
