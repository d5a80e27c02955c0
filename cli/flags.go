package cli

import (
	"github.com/grovetools/pharmastock/config"
	"github.com/spf13/pflag"
)

// ConnectionFlags are the backend flags shared by the commands that talk to
// the API or the hub. Set flags override the loaded configuration.
type ConnectionFlags struct {
	APIURL    string
	HubURL    string
	Token     string
	Transport string

	flags *pflag.FlagSet
}

// AddConnectionFlags registers the connection flags on fs.
func AddConnectionFlags(fs *pflag.FlagSet) *ConnectionFlags {
	f := &ConnectionFlags{flags: fs}
	fs.StringVar(&f.APIURL, "api-url", "", "Base URL of the REST API")
	fs.StringVar(&f.HubURL, "hub-url", "", "Dashboard hub endpoint, absolute or relative to the API origin")
	fs.StringVar(&f.Token, "token", "", "Bearer token for API and hub requests")
	fs.StringVar(&f.Transport, "transport", "", "Hub transport: auto, websockets, sse")
	return f
}

// Apply copies the flags that were set into cfg and re-validates it.
func (f *ConnectionFlags) Apply(cfg *config.Config) error {
	changed := false
	if f.flags.Changed("api-url") {
		cfg.APIURL = f.APIURL
		changed = true
	}
	if f.flags.Changed("hub-url") {
		cfg.HubURL = f.HubURL
		changed = true
	}
	if f.flags.Changed("token") {
		cfg.Auth.AccessToken = f.Token
	}
	if f.flags.Changed("transport") {
		cfg.Hub.Transport = f.Transport
		changed = true
	}
	if !changed {
		return nil
	}
	return cfg.Validate()
}
