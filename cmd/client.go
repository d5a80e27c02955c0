package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/grovetools/pharmastock/cli"
	"github.com/grovetools/pharmastock/config"
	"github.com/grovetools/pharmastock/logging"
	"github.com/grovetools/pharmastock/pkg/api"
	"github.com/grovetools/pharmastock/pkg/hub"
	"github.com/grovetools/pharmastock/pkg/profiling"
	"github.com/grovetools/pharmastock/version"
	"github.com/spf13/cobra"
)

// backend is the configuration and API client a command talks to.
type backend struct {
	cfg    *config.Config
	client *api.Client
}

// connect loads the configuration, applies the connection flags and creates
// the API client.
func connect(cmd *cobra.Command, flags *cli.ConnectionFlags) (*backend, error) {
	defer profiling.Start("config").Stop()

	cfg, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if flags != nil {
		if err := flags.Apply(cfg); err != nil {
			return nil, err
		}
	}
	logging.Reconfigure(cfg)

	client, err := api.New(api.Options{
		BaseURL:     cfg.APIURL,
		AccessToken: cfg.Auth.AccessToken,
		UserAgent:   version.GetInfo().UserAgent(),
	})
	if err != nil {
		return nil, err
	}
	return &backend{cfg: cfg, client: client}, nil
}

// channel creates a hub channel that shares the API client's session: the
// bearer token follows refreshes and the cookie jar is reused.
func (b *backend) channel() (*hub.Channel, error) {
	opts, err := hub.OptionsFromConfig(b.cfg)
	if err != nil {
		return nil, err
	}
	opts.AccessToken = b.client.Token
	opts.HTTPClient = &http.Client{Jar: b.client.Jar()}
	return hub.New(opts, logging.NewLogger("hub")), nil
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
