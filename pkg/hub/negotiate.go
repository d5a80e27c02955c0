package hub

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/grovetools/pharmastock/errors"
	"github.com/sirupsen/logrus"
)

// maxRedirects bounds how many negotiate redirects are followed.
const maxRedirects = 5

type availableTransport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

type negotiateResponse struct {
	ConnectionID        string               `json:"connectionId"`
	ConnectionToken     string               `json:"connectionToken"`
	NegotiateVersion    int                  `json:"negotiateVersion"`
	AvailableTransports []availableTransport `json:"availableTransports"`
	URL                 string               `json:"url"`
	AccessToken         string               `json:"accessToken"`
	Error               string               `json:"error"`
}

// connectionID returns the id to connect with; version 1 servers hand out a
// separate connection token.
func (r negotiateResponse) connectionID() string {
	if r.ConnectionToken != "" {
		return r.ConnectionToken
	}
	return r.ConnectionID
}

func (r negotiateResponse) supports(name string) bool {
	for _, t := range r.AvailableTransports {
		if strings.EqualFold(t.Transport, name) {
			for _, format := range t.TransferFormats {
				if format == "Text" {
					return true
				}
			}
		}
	}
	return false
}

// DialerOptions configures the HTTP dialer.
type DialerOptions struct {
	// HubURL is the absolute hub endpoint, e.g. https://host/hubs/dashboard.
	HubURL string
	// Transport is auto, websockets or sse.
	Transport       string
	SkipNegotiation bool
	// AccessToken returns the bearer token for each connection attempt.
	AccessToken func() string
	HTTPClient  *http.Client
	Logger      *logrus.Entry
}

// HTTPDialer negotiates with the hub and opens a WebSocket or SSE transport.
type HTTPDialer struct {
	opts DialerOptions
}

// NewDialer creates the network dialer used by Channel.
func NewDialer(opts DialerOptions) *HTTPDialer {
	if opts.Transport == "" {
		opts.Transport = TransportAuto
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HTTPDialer{opts: opts}
}

func (d *HTTPDialer) token() string {
	if d.opts.AccessToken == nil {
		return ""
	}
	return d.opts.AccessToken()
}

// Dial negotiates (unless skipped) and connects the preferred transport,
// falling back from WebSockets to SSE in auto mode.
func (d *HTTPDialer) Dial(ctx context.Context) (Transport, error) {
	if d.opts.SkipNegotiation {
		if d.opts.Transport == TransportSSE {
			return nil, errors.New(errors.ErrCodeInvalidInput, "negotiation can only be skipped with the websockets transport")
		}
		return dialWebSocket(ctx, d.opts.HubURL, authHeader(d.token()), d.opts.HTTPClient.Jar)
	}

	hubURL, token, resp, err := d.negotiate(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []string
	switch d.opts.Transport {
	case TransportWebSockets:
		candidates = []string{negotiatedWebSockets}
	case TransportSSE:
		candidates = []string{negotiatedSSE}
	default:
		candidates = []string{negotiatedWebSockets, negotiatedSSE}
	}

	var errs []error
	for _, name := range candidates {
		if !resp.supports(name) {
			errs = append(errs, fmt.Errorf("%s: not offered by the server", name))
			continue
		}
		target, err := withQuery(hubURL, "id", resp.connectionID())
		if err != nil {
			return nil, err
		}

		var transport Transport
		switch name {
		case negotiatedWebSockets:
			transport, err = dialWebSocket(ctx, target, authHeader(token), d.opts.HTTPClient.Jar)
		case negotiatedSSE:
			transport, err = dialSSE(ctx, target, authHeader(token), d.opts.HTTPClient)
		}
		if err == nil {
			d.opts.Logger.WithField("transport", name).Debug("Transport connected")
			return transport, nil
		}
		d.opts.Logger.WithError(err).WithField("transport", name).Debug("Transport failed")
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}

	return nil, errors.NetworkError(hubURL, fmt.Errorf("no transport could connect: %w", stderrors.Join(errs...)))
}

// negotiate follows redirects and returns the final hub URL, the token to
// connect with and the negotiation result.
func (d *HTTPDialer) negotiate(ctx context.Context) (string, string, negotiateResponse, error) {
	hubURL := httpURL(d.opts.HubURL)
	token := d.token()

	for redirects := 0; ; redirects++ {
		resp, err := d.negotiateOnce(ctx, hubURL, token)
		if err != nil {
			return "", "", resp, err
		}
		if resp.URL == "" {
			return hubURL, token, resp, nil
		}
		if redirects >= maxRedirects {
			return "", "", resp, errors.HandshakeError("negotiate redirection limit exceeded")
		}
		d.opts.Logger.WithField("url", resp.URL).Debug("Negotiate redirected")
		hubURL = httpURL(resp.URL)
		if resp.AccessToken != "" {
			token = resp.AccessToken
		}
	}
}

func (d *HTTPDialer) negotiateOnce(ctx context.Context, hubURL, token string) (negotiateResponse, error) {
	var result negotiateResponse

	u, err := url.Parse(hubURL)
	if err != nil {
		return result, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid hub URL %q", hubURL))
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/negotiate"
	q := u.Query()
	q.Set("negotiateVersion", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return result, fmt.Errorf("failed to create negotiate request: %w", err)
	}
	for k, v := range authHeader(token) {
		req.Header[k] = v
	}

	resp, err := d.opts.HTTPClient.Do(req)
	if err != nil {
		return result, errors.NetworkError(hubURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, errors.NetworkError(hubURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return result, errors.HTTPStatusError(http.MethodPost, u.String(), resp.StatusCode, "")
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return result, errors.InvalidResponse(u.String(), err)
	}
	if result.Error != "" {
		return result, errors.HandshakeError(result.Error)
	}
	return result, nil
}

func authHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

func withQuery(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid hub URL %q", rawURL))
	}
	if value != "" {
		q := u.Query()
		q.Set(key, value)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// httpURL maps ws and wss URLs to their http equivalents, which negotiation
// and SSE need.
func httpURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return u.String()
}
