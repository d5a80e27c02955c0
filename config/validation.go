package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/pharmastock/errors"
)

var validTransports = map[string]bool{
	"auto":       true,
	"websockets": true,
	"sse":        true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateAPIURL(c.APIURL); err != nil {
		return err
	}
	if err := validateHubURL(c.HubURL); err != nil {
		return err
	}

	if c.Hub != nil {
		if err := validateHub(c.Hub); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid hub configuration")
		}
	}

	if c.Dashboard != nil {
		if c.Dashboard.RecentMovements < 1 {
			return errors.New(errors.ErrCodeConfigValidation, "dashboard.recent_movements must be at least 1").
				WithDetail("value", c.Dashboard.RecentMovements)
		}
		if c.Dashboard.LowStockThreshold < 0 {
			return errors.New(errors.ErrCodeConfigValidation, "dashboard.low_stock_threshold cannot be negative").
				WithDetail("value", c.Dashboard.LowStockThreshold)
		}
	}

	if c.Metrics != nil && c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigValidation, "metrics.listen must be host:port").
				WithDetail("value", c.Metrics.Listen)
		}
	}

	return nil
}

// ResolveHubURL returns the absolute hub endpoint. A relative hub URL is
// resolved against the origin (scheme and host) of the API URL, so
// api_url "https://x/api" with hub_url "/hubs/dashboard" yields
// "https://x/hubs/dashboard".
func (c *Config) ResolveHubURL() (string, error) {
	hub, err := url.Parse(c.HubURL)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid hub_url")
	}
	if hub.IsAbs() {
		return hub.String(), nil
	}

	api, err := url.Parse(c.APIURL)
	if err != nil || !api.IsAbs() {
		return "", errors.New(errors.ErrCodeConfigValidation, "relative hub_url requires an absolute api_url").
			WithDetail("api_url", c.APIURL)
	}
	origin := &url.URL{Scheme: api.Scheme, Host: api.Host, Path: "/"}
	return origin.ResolveReference(hub).String(), nil
}

func validateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid api_url").WithDetail("value", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New(errors.ErrCodeConfigValidation, "api_url must be an absolute http(s) URL").
			WithDetail("value", raw)
	}
	if u.Host == "" {
		return errors.New(errors.ErrCodeConfigValidation, "api_url is missing a host").WithDetail("value", raw)
	}
	return nil
}

func validateHubURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid hub_url").WithDetail("value", raw)
	}
	if !u.IsAbs() {
		if !strings.HasPrefix(raw, "/") {
			return errors.New(errors.ErrCodeConfigValidation, "relative hub_url must start with /").
				WithDetail("value", raw)
		}
		return nil
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return nil
	default:
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("unsupported hub_url scheme %q", u.Scheme)).
			WithDetail("value", raw)
	}
}

func validateHub(h *HubConfig) error {
	if h.Transport != "" && !validTransports[h.Transport] {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unknown transport %q", h.Transport)).
			WithDetail("transport", h.Transport)
	}

	durations := map[string]string{
		"reconnect_delay":     h.ReconnectDelay,
		"keep_alive_interval": h.KeepAliveInterval,
		"server_timeout":      h.ServerTimeout,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if err := validateDuration(field, value, true); err != nil {
			return err
		}
	}

	for i, value := range h.ReconnectPolicy {
		if err := validateDuration(fmt.Sprintf("reconnect_policy[%d]", i), value, false); err != nil {
			return err
		}
	}

	if h.KeepAliveInterval != "" && h.ServerTimeout != "" &&
		h.KeepAliveDuration() >= h.ServerTimeoutDuration() {
		return errors.New(errors.ErrCodeInvalidInput, "keep_alive_interval must be shorter than server_timeout")
	}

	return nil
}

func validateDuration(field, value string, positive bool) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, fmt.Sprintf("%s is not a valid duration", field)).
			WithDetail("value", value)
	}
	if d < 0 || (positive && d == 0) {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s must be positive", field)).
			WithDetail("value", value)
	}
	return nil
}
