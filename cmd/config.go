package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/grovetools/pharmastock/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the `config` command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the pharmastock configuration",
	}
	cmd.AddCommand(newConfigLayersCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigLayersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "Display the layered configuration for the current directory",
		Long: `Shows how the final configuration is built by merging layers:
1. Defaults
2. Global config (~/.config/pharmastock/pharmastock.yml)
3. Project config (pharmastock.yml, searched upward from here)
4. Override files (pharmastock.override.yml)
5. PHARMASTOCK_* environment variables
Access tokens are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}

			layered, err := config.LoadLayered(cwd)
			if err != nil {
				return fmt.Errorf("failed to load layered config: %w", err)
			}

			out := cmd.OutOrStdout()
			printLayer(out, "DEFAULTS", "", layered.Default)
			printLayer(out, "GLOBAL CONFIG", layered.FilePaths[config.SourceGlobal], layered.Global)
			printLayer(out, "PROJECT CONFIG", layered.FilePaths[config.SourceProject], layered.Project)
			for _, override := range layered.Overrides {
				printLayer(out, "OVERRIDE CONFIG", override.Path, override.Config)
			}
			if len(layered.Env) > 0 {
				fmt.Fprintln(out, "--- # ENVIRONMENT")
				keys := make([]string, 0, len(layered.Env))
				for k := range layered.Env {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "# %s=%s\n", k, layered.Env[k])
				}
				fmt.Fprintln(out)
			}
			printLayer(out, "FINAL MERGED CONFIG", "", layered.Final)
			return nil
		},
	}
}

func printLayer(w io.Writer, title, path string, cfg *config.Config) {
	if cfg == nil {
		return
	}
	fmt.Fprintf(w, "--- # %s\n", title)
	if path != "" {
		fmt.Fprintf(w, "# Source: %s\n", path)
	}
	masked := *cfg
	if cfg.Auth != nil {
		auth := *cfg.Auth
		auth.AccessToken = mask(auth.AccessToken)
		masked.Auth = &auth
	}
	data, _ := yaml.Marshal(&masked)
	fmt.Fprintln(w, string(data))
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of pharmastock.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
