package session

import (
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/collabtext/scribe/pkg/logger"
)

// HTTPServer exposes a SessionManager over HTTP, upgrading one path to a
// WebSocket per connecting client, generalizing the teacher's per-document
// server.go to route by session name instead of document ID.
type HTTPServer struct {
	manager *SessionManager
	mux     *http.ServeMux

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewHTTPServer wires the manager's socket and stats routes.
func NewHTTPServer(manager *SessionManager, readTimeout, writeTimeout time.Duration) *HTTPServer {
	s := &HTTPServer{
		manager:      manager,
		mux:          http.NewServeMux(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
	s.mux.HandleFunc("/api/socket/", s.handleSocket)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleSocket handles WebSocket connections for a session.
// Route: /api/socket/{sessionName}
func (s *HTTPServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/api/socket/"):]
	if name == "" {
		http.Error(w, "session name required", http.StatusBadRequest)
		return
	}

	hub, ok := s.manager.Get(name)
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		logger.Error("websocket upgrade failed: %v", err)
		return
	}

	c, err := Accept(r.Context(), hub, conn, s.readTimeout, s.writeTimeout)
	if err != nil {
		logger.Error("session: handshake failed: %v", err)
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return
	}

	if err := c.Handle(r.Context()); err != nil {
		logger.Error("session: connection error: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleStats reports coarse server-wide counts.
// Route: /api/stats
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	names := s.manager.Names()
	buffers := 0
	for _, name := range names {
		if hub, ok := s.manager.Get(name); ok {
			buffers += len(hub.Buffers())
		}
	}

	stats := struct {
		Sessions int `json:"sessions"`
		Buffers  int `json:"buffers"`
	}{Sessions: len(names), Buffers: buffers}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// ListenAndServe starts the HTTP server.
func (s *HTTPServer) ListenAndServe(addr string) error {
	logger.Info("session server listening on %s", addr)
	return http.ListenAndServe(addr, s)
}

// ShutdownAll stops every active session's hub.
func (s *HTTPServer) ShutdownAll() {
	for _, name := range s.manager.Names() {
		s.manager.Destroy(name)
	}
}
