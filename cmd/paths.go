package cmd

import (
	"github.com/grovetools/pharmastock/pkg/paths"
	"github.com/spf13/cobra"
)

// PathsOutput represents the XDG-compliant paths used by pharmastock.
type PathsOutput struct {
	ConfigDir    string `json:"config_dir"`
	StateDir     string `json:"state_dir"`
	CacheDir     string `json:"cache_dir"`
	LogsDir      string `json:"logs_dir"`
	DevServerPid string `json:"dev_server_pid"`
}

// NewPathsCmd creates the `paths` command.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the XDG-compliant paths used by pharmastock",
		Long: `Print the paths used by pharmastock as JSON.

- config_dir: global configuration (pharmastock.yml)
- state_dir: runtime state (logs, pid files)
- cache_dir: temporary data
- logs_dir: per-component daily log files
- dev_server_pid: pid file of a running dev-server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, PathsOutput{
				ConfigDir:    paths.ConfigDir(),
				StateDir:     paths.StateDir(),
				CacheDir:     paths.CacheDir(),
				LogsDir:      paths.LogsDir(),
				DevServerPid: paths.DevServerPidPath(),
			})
		},
	}
}
