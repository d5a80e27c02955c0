package fakehub

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// HubPath is where the dashboard hub is mounted.
const HubPath = "/hubs/dashboard"

const sessionCookie = "pharmastock_session"

// Options configures a Server.
type Options struct {
	// AccessToken, when set, is required as a bearer token or session cookie
	// on every API call and hub connection.
	AccessToken string
	// Transports lists the negotiated transports offered, WebSockets and
	// ServerSentEvents by default.
	Transports []string
	// KeepAlive is the server ping interval.
	KeepAlive time.Duration
}

// fault is an injected failure for the next matching requests.
type fault struct {
	status int
	body   string
	times  int
}

// Server serves the dashboard REST API under /api and the hub under HubPath.
type Server struct {
	logger *logrus.Entry
	store  *Store
	opts   Options
	server *http.Server

	mu             sync.Mutex
	faults         map[string]*fault
	handshakeError string
	sessions       map[string]bool
	conns          map[string]*hubConn
}

// NewServer creates a Server over store.
func NewServer(store *Store, opts Options, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(opts.Transports) == 0 {
		opts.Transports = []string{"WebSockets", "ServerSentEvents"}
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 15 * time.Second
	}
	return &Server{
		logger:   logger,
		store:    store,
		opts:     opts,
		faults:   make(map[string]*fault),
		sessions: make(map[string]bool),
		conns:    make(map[string]*hubConn),
	}
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the HTTP handler, for httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.injectFaults)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.store.Stats())
			})
			r.Get("/dashboard/alerts", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.store.Alerts())
			})
			r.Get("/dashboard/recent-movements", s.handleRecentMovements)
			r.Get("/dashboard/valuation", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.store.Valuation())
			})
			r.Get("/dashboard/low-stock", s.handleLowStock)

			r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.store.Notifications())
			})
			r.Get("/notifications/system-alerts", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, s.store.SystemAlerts())
			})
			r.Put("/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
				s.store.MarkAllRead()
				w.WriteHeader(http.StatusNoContent)
			})
			r.Put("/notifications/{id}/read", s.handleMarkRead)
			r.Delete("/notifications/{id}", s.handleDelete)
		})
	})

	r.Route(HubPath, func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/negotiate", s.handleNegotiate)
		r.Get("/", s.handleHubStream)
		r.Post("/", s.handleHubSend)
		r.Delete("/", s.handleHubDelete)
	})

	return h2c.NewHandler(r, &http2.Server{})
}

// ListenAndServe serves on addr. It blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.WithField("addr", listener.Addr().String()).Info("Dev server listening")
	err := srv.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes every hub connection and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.DropConnections()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// FailNext makes the next times requests to method+path (relative to /api)
// fail with status and body.
func (s *Server) FailNext(method, path string, status int, body string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = &fault{status: status, body: body, times: times}
}

// SetHandshakeError makes hub handshakes fail with msg. An empty msg restores
// normal handshakes.
func (s *Server) SetHandshakeError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handshakeError = msg
}

// DropConnections closes every hub transport without a close message.
func (s *Server) DropConnections() {
	for _, c := range s.takeConns() {
		c.close()
	}
}

// CloseConnections sends a close message to every hub connection.
func (s *Server) CloseConnections(reason string, allowReconnect bool) {
	record := closeRecord(reason, allowReconnect)
	for _, c := range s.takeConns() {
		_ = c.write(record)
		c.close()
	}
}

// Connections returns the number of open hub connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conns {
		if c.started() {
			n++
		}
	}
	return n
}

func (s *Server) takeConns() []*hubConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := make([]*hubConn, 0, len(s.conns))
	for id, c := range s.conns {
		conns = append(conns, c)
		delete(s.conns, id)
	}
	return conns
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request served")
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		f, ok := s.faults[key]
		if ok {
			f.times--
			if f.times <= 0 {
				delete(s.faults, key)
			}
		}
		s.mu.Unlock()

		if ok {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.AccessToken == "" {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+s.opts.AccessToken {
		return true
	}
	// Browsers cannot set headers on WebSocket upgrades.
	if r.URL.Query().Get("access_token") == s.opts.AccessToken {
		return true
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.sessions[cookie.Value]
	}
	return false
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Session expired. Please log in again."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRefresh issues a new session cookie. Refresh works whenever a bearer
// token or the previous session is presented.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		if _, err := r.Cookie(sessionCookie); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token is missing."})
			return
		}
	}

	session := uuid.NewString()
	s.mu.Lock()
	s.sessions[session] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken":  s.opts.AccessToken,
		"refreshToken": uuid.NewString(),
		"id":           1,
		"username":     "pharmacist",
		"role":         "Pharmacist",
	})
}

func (s *Server) handleRecentMovements(w http.ResponseWriter, r *http.Request) {
	count := 5
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"title": "count must be a positive integer"})
			return
		}
		count = n
	}
	writeJSON(w, http.StatusOK, s.store.RecentMovements(count))
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 50
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"title": "threshold must be an integer"})
			return
		}
		threshold = n
	}
	writeJSON(w, http.StatusOK, s.store.LowStock(threshold))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid notification id."})
		return
	}
	if !s.store.MarkRead(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Notification not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid notification id."})
		return
	}
	if !s.store.Delete(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Notification not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}
