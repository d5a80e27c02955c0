package cmd

import (
	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/pkg/profiling"
	"github.com/grovetools/pharmastock/version"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the pharmastock command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"pharmastock",
		"Live pharmacy stock dashboard",
	)
	cli.SetVersionTemplate(root, version.GetInfo())
	profiling.NewCobraProfiler().Attach(root)

	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewStatsCmd())
	root.AddCommand(NewAlertsCmd())
	root.AddCommand(NewMovementsCmd())
	root.AddCommand(NewValuationCmd())
	root.AddCommand(NewLowStockCmd())
	root.AddCommand(NewNotificationsCmd())
	root.AddCommand(NewConfigCmd())
	root.AddCommand(NewLogsCmd())
	root.AddCommand(NewDevServerCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewPathsCmd())
	root.AddCommand(cli.NewVersionCommand("pharmastock"))
	return root
}
