package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/grovetools/pharmastock/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func negotiateHandler(transports ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var available []availableTransport
		for _, name := range transports {
			available = append(available, availableTransport{Transport: name, TransferFormats: []string{"Text", "Binary"}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(negotiateResponse{
			ConnectionID:        "conn-1",
			ConnectionToken:     "token-1",
			NegotiateVersion:    1,
			AvailableTransports: available,
		})
	}
}

func TestDialFollowsRedirectAndUsesWebSockets(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var upgraded atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/hubs/dashboard/negotiate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1", r.URL.Query().Get("negotiateVersion"))
		assert.Equal(t, "Bearer original", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(negotiateResponse{
			URL:         "http://" + r.Host + "/edge/dashboard",
			AccessToken: "redirected",
		})
	})
	mux.HandleFunc("/edge/dashboard/negotiate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer redirected", r.Header.Get("Authorization"))
		negotiateHandler(negotiatedWebSockets, negotiatedSSE)(w, r)
	})
	mux.HandleFunc("/edge/dashboard", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-1", r.URL.Query().Get("id"))
		assert.Equal(t, "Bearer redirected", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		upgraded.Store(true)
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDialer(DialerOptions{
		HubURL:      srv.URL + "/hubs/dashboard",
		AccessToken: func() string { return "original" },
		Logger:      quietLogger(),
	})

	transport, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer transport.Close()

	assert.Equal(t, negotiatedWebSockets, transport.Name())
	assert.True(t, upgraded.Load())

	require.NoError(t, transport.Send(context.Background(), handshakeRecord))
	echo, err := transport.Receive()
	require.NoError(t, err)
	assert.Equal(t, string(handshakeRecord), string(echo))
}

func TestDialRedirectLimit(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		_ = json.NewEncoder(w).Encode(negotiateResponse{URL: fmt.Sprintf("http://%s/hop%d", r.Host, n)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDialer(DialerOptions{HubURL: srv.URL + "/hub", Logger: quietLogger()})
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeChannelHandshake))
	assert.Equal(t, int32(maxRedirects+1), calls.Load())
}

func TestDialNegotiateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDialer(DialerOptions{HubURL: srv.URL + "/hub", Logger: quietLogger()})
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
}

func TestDialSSE(t *testing.T) {
	posted := make(chan string, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/hub/negotiate", negotiateHandler(negotiatedSSE))
	mux.HandleFunc("/hub", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-1", r.URL.Query().Get("id"))
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, ": connected\n\n")
			fmt.Fprint(w, "data: {}\x1e\n\n")
			fmt.Fprint(w, "data: {\"type\":6}\x1e\n\n")
			flusher.Flush()
			<-r.Context().Done()
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			posted <- string(body)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusAccepted)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDialer(DialerOptions{HubURL: srv.URL + "/hub", Transport: TransportAuto, Logger: quietLogger()})
	transport, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer transport.Close()
	assert.Equal(t, negotiatedSSE, transport.Name())

	first, err := transport.Receive()
	require.NoError(t, err)
	assert.Equal(t, "{}\x1e", string(first))

	second, err := transport.Receive()
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":6}\x1e", string(second))

	require.NoError(t, transport.Send(context.Background(), pingRecord))
	assert.Equal(t, string(pingRecord), <-posted)
}

func TestDialTransportNotOffered(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/hub/negotiate", negotiateHandler(negotiatedSSE))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := NewDialer(DialerOptions{HubURL: srv.URL + "/hub", Transport: TransportWebSockets, Logger: quietLogger()})
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNetwork))
	assert.Contains(t, err.Error(), "not offered")
}

func TestSkipNegotiationRequiresWebSockets(t *testing.T) {
	d := NewDialer(DialerOptions{HubURL: "http://localhost:1/hub", Transport: TransportSSE, SkipNegotiation: true})
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestHTTPURL(t *testing.T) {
	assert.Equal(t, "http://x/hub", httpURL("ws://x/hub"))
	assert.Equal(t, "https://x/hub", httpURL("wss://x/hub"))
	assert.Equal(t, "https://x/hub", httpURL("https://x/hub"))
}
