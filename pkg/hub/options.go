package hub

import (
	"net/http"
	"time"

	"github.com/grovetools/pharmastock/config"
)

// Defaults for Options fields left zero.
const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultKeepAliveInterval = 15 * time.Second
	DefaultServerTimeout     = 30 * time.Second
)

// DefaultReconnectPolicy is the wait before each automatic reconnect attempt
// after a dropped connection.
var DefaultReconnectPolicy = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

// Options configures a Channel.
type Options struct {
	// HubURL is the absolute hub endpoint.
	HubURL string
	// Transport is auto, websockets or sse.
	Transport string
	// AccessToken supplies the bearer token for every connection attempt.
	AccessToken func() string
	// HTTPClient is used for negotiation and the SSE transport. Its Jar
	// carries the session cookies to the WebSocket upgrade too.
	HTTPClient *http.Client

	// ReconnectDelay is the wait between initial connect attempts.
	ReconnectDelay time.Duration
	// ReconnectPolicy lists the waits before each reconnect attempt after a
	// drop. Nil uses DefaultReconnectPolicy; an empty slice never reconnects.
	ReconnectPolicy   []time.Duration
	KeepAliveInterval time.Duration
	ServerTimeout     time.Duration
	SkipNegotiation   bool
	// ValidateMessages checks every payload against its schema before decoding.
	ValidateMessages bool

	// Dialer replaces the network dialer, mainly for tests.
	Dialer Dialer
}

// OptionsFromConfig builds channel options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	hubURL, err := cfg.ResolveHubURL()
	if err != nil {
		return Options{}, err
	}

	opts := Options{HubURL: hubURL, ValidateMessages: true}
	if cfg.Auth != nil && cfg.Auth.AccessToken != "" {
		token := cfg.Auth.AccessToken
		opts.AccessToken = func() string { return token }
	}
	if h := cfg.Hub; h != nil {
		opts.Transport = h.Transport
		opts.ReconnectDelay = h.ReconnectDelayDuration()
		opts.ReconnectPolicy = h.ReconnectPolicyDurations()
		opts.KeepAliveInterval = h.KeepAliveDuration()
		opts.ServerTimeout = h.ServerTimeoutDuration()
		opts.SkipNegotiation = h.SkipNegotiation
		opts.ValidateMessages = h.ShouldValidateMessages()
	}
	return opts, nil
}

func (o Options) withDefaults() Options {
	if o.Transport == "" {
		o.Transport = TransportAuto
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ReconnectPolicy == nil {
		o.ReconnectPolicy = DefaultReconnectPolicy
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if o.ServerTimeout <= 0 {
		o.ServerTimeout = DefaultServerTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}
