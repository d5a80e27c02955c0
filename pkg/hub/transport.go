package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport names as used in configuration and negotiation.
const (
	TransportAuto       = "auto"
	TransportWebSockets = "websockets"
	TransportSSE        = "sse"

	negotiatedWebSockets = "WebSockets"
	negotiatedSSE        = "ServerSentEvents"
)

// Transport is one open connection to the hub carrying protocol records.
type Transport interface {
	// Send writes one or more complete records.
	Send(ctx context.Context, data []byte) error
	// Receive blocks until data arrives. A chunk may hold several records or
	// part of one. It fails once the transport is closed.
	Receive() ([]byte, error)
	Close() error
	// Name identifies the transport in logs.
	Name() string
}

// Dialer opens transports to the hub. Each call yields a fresh connection
// that has not yet performed the handshake.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

const writeWait = 10 * time.Second

type wsTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	once    sync.Once
}

func dialWebSocket(ctx context.Context, target string, header http.Header, jar http.CookieJar) (*wsTransport, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
		Jar:              jar,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket upgrade failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Name() string { return negotiatedWebSockets }

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
