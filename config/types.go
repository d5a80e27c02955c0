package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Default values applied by SetDefaults.
const (
	DefaultAPIURL            = "http://localhost:5000/api"
	DefaultHubURL            = "/hubs/dashboard"
	DefaultTransport         = "auto"
	DefaultReconnectDelay    = "5s"
	DefaultKeepAliveInterval = "15s"
	DefaultServerTimeout     = "30s"
	DefaultRecentMovements   = 5
	DefaultLowStockThreshold = 50
)

// DefaultReconnectPolicy is the delay schedule used while the hub connection
// is being re-established after a drop.
var DefaultReconnectPolicy = []string{"0s", "2s", "10s", "30s"}

// Config represents the pharmastock.yml configuration
type Config struct {
	Version    string `yaml:"version" toml:"version" jsonschema:"description=Configuration version (e.g. 1.0)"`
	APIURL     string `yaml:"api_url,omitempty" toml:"api_url,omitempty" jsonschema:"description=Base URL of the REST API (e.g. https://pharmacy.example.com/api)"`
	HubURL     string `yaml:"hub_url,omitempty" toml:"hub_url,omitempty" jsonschema:"description=Dashboard hub endpoint; relative paths resolve against the API origin"`
	Production bool   `yaml:"production,omitempty" toml:"production,omitempty" jsonschema:"description=Production mode suppresses informational logging"`

	Auth      *AuthConfig      `yaml:"auth,omitempty" toml:"auth,omitempty" jsonschema:"description=Credentials attached to API and hub requests"`
	Hub       *HubConfig       `yaml:"hub,omitempty" toml:"hub,omitempty" jsonschema:"description=Live update channel settings"`
	Dashboard *DashboardConfig `yaml:"dashboard,omitempty" toml:"dashboard,omitempty" jsonschema:"description=Dashboard view settings"`
	Metrics   *MetricsConfig   `yaml:"metrics,omitempty" toml:"metrics,omitempty" jsonschema:"description=Prometheus exporter settings"`

	// Extensions captures all other top-level keys (logging, tui, ...).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// AuthConfig holds request credentials.
type AuthConfig struct {
	AccessToken string `yaml:"access_token,omitempty" toml:"access_token,omitempty" jsonschema:"description=Bearer token sent with every request"`
}

// HubConfig configures the live update channel.
type HubConfig struct {
	Transport         string   `yaml:"transport,omitempty" toml:"transport,omitempty" jsonschema:"enum=auto,enum=websockets,enum=sse,description=Preferred transport"`
	ReconnectDelay    string   `yaml:"reconnect_delay,omitempty" toml:"reconnect_delay,omitempty" jsonschema:"description=Delay before retrying a failed initial connect (e.g. 5s)"`
	ReconnectPolicy   []string `yaml:"reconnect_policy,omitempty" toml:"reconnect_policy,omitempty" jsonschema:"description=Delays between automatic reconnect attempts after a drop"`
	KeepAliveInterval string   `yaml:"keep_alive_interval,omitempty" toml:"keep_alive_interval,omitempty" jsonschema:"description=Interval between client pings"`
	ServerTimeout     string   `yaml:"server_timeout,omitempty" toml:"server_timeout,omitempty" jsonschema:"description=Silence after which the connection is considered dropped"`
	SkipNegotiation   bool     `yaml:"skip_negotiation,omitempty" toml:"skip_negotiation,omitempty" jsonschema:"description=Connect the WebSocket transport directly without negotiating"`
	ValidateMessages  *bool    `yaml:"validate_messages,omitempty" toml:"validate_messages,omitempty" jsonschema:"description=Validate push payloads against their schema (default true)"`
}

// DashboardConfig configures the dashboard views.
type DashboardConfig struct {
	RecentMovements   int `yaml:"recent_movements,omitempty" toml:"recent_movements,omitempty" jsonschema:"minimum=1,description=Capacity of the recent movements list"`
	LowStockThreshold int `yaml:"low_stock_threshold,omitempty" toml:"low_stock_threshold,omitempty" jsonschema:"minimum=0,description=Quantity below which an item counts as low stock"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty" toml:"listen,omitempty" jsonschema:"description=Address for the /metrics endpoint (e.g. :9464); empty disables it"`
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.HubURL == "" {
		c.HubURL = DefaultHubURL
	}
	if c.Auth == nil {
		c.Auth = &AuthConfig{}
	}

	if c.Hub == nil {
		c.Hub = &HubConfig{}
	}
	if c.Hub.Transport == "" {
		c.Hub.Transport = DefaultTransport
	}
	if c.Hub.ReconnectDelay == "" {
		c.Hub.ReconnectDelay = DefaultReconnectDelay
	}
	if len(c.Hub.ReconnectPolicy) == 0 {
		c.Hub.ReconnectPolicy = append([]string(nil), DefaultReconnectPolicy...)
	}
	if c.Hub.KeepAliveInterval == "" {
		c.Hub.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.Hub.ServerTimeout == "" {
		c.Hub.ServerTimeout = DefaultServerTimeout
	}
	if c.Hub.ValidateMessages == nil {
		trueVal := true
		c.Hub.ValidateMessages = &trueVal
	}

	if c.Dashboard == nil {
		c.Dashboard = &DashboardConfig{}
	}
	if c.Dashboard.RecentMovements == 0 {
		c.Dashboard.RecentMovements = DefaultRecentMovements
	}
	if c.Dashboard.LowStockThreshold == 0 {
		c.Dashboard.LowStockThreshold = DefaultLowStockThreshold
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
}

// ReconnectDelayDuration returns the parsed initial-connect retry delay.
func (h *HubConfig) ReconnectDelayDuration() time.Duration {
	return parseDurationOr(h.ReconnectDelay, DefaultReconnectDelay)
}

// KeepAliveDuration returns the parsed ping interval.
func (h *HubConfig) KeepAliveDuration() time.Duration {
	return parseDurationOr(h.KeepAliveInterval, DefaultKeepAliveInterval)
}

// ServerTimeoutDuration returns the parsed server silence timeout.
func (h *HubConfig) ServerTimeoutDuration() time.Duration {
	return parseDurationOr(h.ServerTimeout, DefaultServerTimeout)
}

// ReconnectPolicyDurations returns the parsed reconnect schedule.
func (h *HubConfig) ReconnectPolicyDurations() []time.Duration {
	policy := h.ReconnectPolicy
	if len(policy) == 0 {
		policy = DefaultReconnectPolicy
	}
	delays := make([]time.Duration, 0, len(policy))
	for _, p := range policy {
		d, err := time.ParseDuration(p)
		if err != nil {
			continue
		}
		delays = append(delays, d)
	}
	return delays
}

// ShouldValidateMessages reports whether push payloads are schema-checked.
func (h *HubConfig) ShouldValidateMessages() bool {
	return h.ValidateMessages == nil || *h.ValidateMessages
}

func parseDurationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded pharmastock.yml into the provided target struct. The target must be
// a pointer. It is not an error for the section to be missing.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ConfigSource identifies the origin of a configuration value.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
	SourceEnv      ConfigSource = "env"
)

// OverrideSource holds a raw configuration from an override file and its path.
type OverrideSource struct {
	Path   string
	Config *Config
}

// LayeredConfig holds the raw configuration from each source file,
// as well as the final merged configuration, for analysis purposes.
type LayeredConfig struct {
	Default   *Config                 // Config with only default values applied.
	Global    *Config                 // Raw config from the global file.
	Project   *Config                 // Raw config from the project file.
	Overrides []OverrideSource        // Raw configs from override files, in order of application.
	Env       map[string]string       // Environment overrides that were applied.
	Final     *Config                 // The fully merged and validated config.
	FilePaths map[ConfigSource]string // Maps sources to their file paths.
}
