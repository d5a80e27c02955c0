package fakehub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const recordSeparator = 0x1e

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func encodeRecord(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Payloads come from the store and always marshal.
		panic(fmt.Sprintf("fakehub: failed to encode record: %v", err))
	}
	return append(data, recordSeparator)
}

func invocationRecord(e Event) []byte {
	return encodeRecord(map[string]interface{}{
		"type":      1,
		"target":    e.Target,
		"arguments": []interface{}{e.Payload},
	})
}

func closeRecord(reason string, allowReconnect bool) []byte {
	msg := map[string]interface{}{"type": 7, "allowReconnect": allowReconnect}
	if reason != "" {
		msg["error"] = reason
	}
	return encodeRecord(msg)
}

var pingRecord = encodeRecord(map[string]int{"type": 6})

// hubConn is one client connection, over a WebSocket or an SSE stream.
type hubConn struct {
	id     string
	server *Server
	logger *logrus.Entry

	mu         sync.Mutex
	ws         *websocket.Conn
	stream     chan []byte
	handshaken bool
	events     chan Event
	pending    []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) newConn() *hubConn {
	c := &hubConn{
		id:     uuid.NewString(),
		server: s,
		done:   make(chan struct{}),
	}
	c.logger = s.logger.WithField("connection", c.id)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	return c
}

func (s *Server) lookupConn(id string) *hubConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[id]
}

func (s *Server) removeConn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (c *hubConn) started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshaken
}

// write sends one or more records to the client.
func (c *hubConn) write(record []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}

	if c.ws != nil {
		_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return c.ws.WriteMessage(websocket.TextMessage, record)
	}
	if c.stream != nil {
		select {
		case c.stream <- record:
			return nil
		default:
			return fmt.Errorf("stream buffer full")
		}
	}
	return fmt.Errorf("connection %s has no transport", c.id)
}

func (c *hubConn) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		ws := c.ws
		events := c.events
		c.mu.Unlock()

		if ws != nil {
			ws.Close()
		}
		if events != nil {
			c.server.store.Unsubscribe(events)
		}
		c.server.removeConn(c.id)
		c.logger.Debug("Hub connection closed")
	})
}

// receive handles inbound data. The first record must be the handshake.
func (c *hubConn) receive(data []byte) {
	c.mu.Lock()
	c.pending = append(c.pending, data...)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		i := bytes.IndexByte(c.pending, recordSeparator)
		if i < 0 {
			c.mu.Unlock()
			return
		}
		record := append([]byte(nil), c.pending[:i]...)
		c.pending = c.pending[i+1:]
		handshaken := c.handshaken
		c.mu.Unlock()

		if !handshaken {
			c.handshake(record)
			continue
		}

		var msg struct {
			Type int `json:"type"`
		}
		if err := json.Unmarshal(record, &msg); err != nil {
			c.logger.WithError(err).Debug("Ignoring malformed client record")
			continue
		}
		if msg.Type == 7 {
			c.close()
			return
		}
	}
}

func (c *hubConn) handshake(record []byte) {
	var req struct {
		Protocol string `json:"protocol"`
		Version  int    `json:"version"`
	}
	reply := map[string]string{}
	if err := json.Unmarshal(record, &req); err != nil || req.Protocol != "json" {
		reply["error"] = fmt.Sprintf("Requested protocol '%s' is not available.", req.Protocol)
	}

	c.server.mu.Lock()
	if msg := c.server.handshakeError; msg != "" {
		reply["error"] = msg
	}
	c.server.mu.Unlock()

	if reply["error"] != "" {
		c.logger.WithField("error", reply["error"]).Debug("Rejecting handshake")
		_ = c.write(encodeRecord(reply))
		// Let the reply reach the client before the transport goes away.
		time.AfterFunc(50*time.Millisecond, c.close)
		return
	}

	events := c.server.store.Subscribe()
	c.mu.Lock()
	c.handshaken = true
	c.events = events
	c.mu.Unlock()

	if err := c.write(encodeRecord(reply)); err != nil {
		c.close()
		return
	}
	c.logger.Debug("Hub handshake completed")
	go c.pump(events)
}

// pump forwards store events and keep-alive pings until the connection closes.
func (c *hubConn) pump(events chan Event) {
	ticker := time.NewTicker(c.server.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := c.write(invocationRecord(e)); err != nil {
				c.logger.WithError(err).Debug("Failed to push event")
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(pingRecord); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) offers(name string) bool {
	for _, t := range s.opts.Transports {
		if t == name {
			return true
		}
	}
	return false
}

func (s *Server) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	c := s.newConn()

	transports := make([]map[string]interface{}, 0, len(s.opts.Transports))
	for _, t := range s.opts.Transports {
		transports = append(transports, map[string]interface{}{
			"transport":       t,
			"transferFormats": []string{"Text"},
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connectionId":        uuid.NewString(),
		"connectionToken":     c.id,
		"negotiateVersion":    1,
		"availableTransports": transports,
	})
}

// connFor returns the negotiated connection named by the id query parameter.
// WebSocket clients may skip negotiation, which creates a connection on the fly.
func (s *Server) connFor(r *http.Request) *hubConn {
	id := r.URL.Query().Get("id")
	if id == "" {
		if websocket.IsWebSocketUpgrade(r) {
			return s.newConn()
		}
		return nil
	}
	return s.lookupConn(id)
}

func (s *Server) handleHubStream(w http.ResponseWriter, r *http.Request) {
	c := s.connFor(r)
	if c == nil {
		http.Error(w, "No Connection with that ID", http.StatusNotFound)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		if !s.offers("WebSockets") {
			http.Error(w, "WebSockets transport is disabled", http.StatusNotFound)
			return
		}
		s.serveWebSocket(c, w, r)
		return
	}
	if !s.offers("ServerSentEvents") {
		http.Error(w, "ServerSentEvents transport is disabled", http.StatusNotFound)
		return
	}
	s.serveSSE(c, w, r)
}

func (s *Server) serveWebSocket(c *hubConn, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WithError(err).Debug("WebSocket upgrade failed")
		c.close()
		return
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.logger.Debug("WebSocket connected")

	defer c.close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		c.receive(data)
	}
}

func (s *Server) serveSSE(c *hubConn, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream := make(chan []byte, 256)
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	defer c.close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()
	c.logger.Debug("SSE stream connected")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			// Flush whatever was queued before the close, e.g. a close message.
			for {
				select {
				case record := <-stream:
					fmt.Fprintf(w, "data: %s\n\n", record)
				default:
					flusher.Flush()
					return
				}
			}
		case record := <-stream:
			fmt.Fprintf(w, "data: %s\n\n", record)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHubSend(w http.ResponseWriter, r *http.Request) {
	c := s.lookupConn(r.URL.Query().Get("id"))
	if c == nil {
		http.Error(w, "No Connection with that ID", http.StatusNotFound)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.receive(data)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHubDelete(w http.ResponseWriter, r *http.Request) {
	if c := s.lookupConn(r.URL.Query().Get("id")); c != nil {
		c.close()
	}
	w.WriteHeader(http.StatusAccepted)
}
