package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mist-signaling/internal/config"
	"github.com/rickgao/mist-signaling/internal/metrics"
	"github.com/rickgao/mist-signaling/internal/router"
)

// Server is the WebSocket front end of the relay.
type Server struct {
	cfg      config.ServerConfig
	router   *router.Router
	logger   *slog.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	// Connection cap; one token per live connection.
	slots chan struct{}

	mu       sync.Mutex
	conns    map[*peerConn]struct{}
	closing  bool
	listener net.Listener
	wg       sync.WaitGroup
}

// Stats contains connection statistics.
type Stats struct {
	Active int `json:"active"`
	Limit  int `json:"limit"`
}

// New creates a Server dispatching frames to r.
func New(cfg config.ServerConfig, r *router.Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		router: r,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		slots: make(chan struct{}, cfg.MaxConnections),
		conns: make(map[*peerConn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleUpgrade)
	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server failed", "error", err)
		}
	}()

	s.logger.Info("signaling server started",
		"addr", ln.Addr().String(),
		"path", s.cfg.Path,
		"max_connections", s.cfg.MaxConnections,
	)
	return nil
}

// Addr returns the bound listen address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Stop stops accepting connections and closes every live one.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping signaling server")

	s.mu.Lock()
	s.closing = true
	live := make([]*peerConn, 0, len(s.conns))
	for p := range s.conns {
		live = append(live, p)
	}
	s.mu.Unlock()

	err := s.http.Shutdown(ctx)

	for _, p := range live {
		_ = p.closeWith(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("signaling server stopped", "closed", len(live))
	case <-ctx.Done():
		s.logger.Warn("signaling server stop timed out")
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Stats returns current connection statistics.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Active: len(s.conns), Limit: s.cfg.MaxConnections}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case s.slots <- struct{}{}:
	default:
		metrics.RejectedConnections.Inc()
		s.logger.Warn("connection limit reached", "remote", r.RemoteAddr, "limit", s.cfg.MaxConnections)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	release := func() { <-s.slots }

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newPeerConn(conn, s.cfg, s.logger)
	if !s.track(p) {
		_ = p.closeWith(websocket.CloseGoingAway, "server shutdown")
		release()
		return
	}
	defer release()
	defer s.untrack(p)

	metrics.TotalConnections.Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	s.serve(p)
}

// serve runs the read loop for p and cleans up when it ends.
func (s *Server) serve(p *peerConn) {
	p.logger.Debug("connection opened", "remote", p.remote)
	go p.heartbeat()

	cause := s.readLoop(p)

	id, _ := s.router.Disconnect(p)
	_ = p.Close()
	metrics.ConnectionsClosed.WithLabelValues(cause).Inc()
	p.logger.Debug("connection closed", "client", id, "cause", cause)
}

func (s *Server) readLoop(p *peerConn) string {
	for {
		data, err := p.read()
		if err != nil {
			cause := classifyReadError(err)
			if !expectedClose(cause) {
				p.logger.Warn("read failed", "cause", cause, "error", err)
			}
			return cause
		}

		if err := s.router.Dispatch(p, data); err != nil {
			p.logger.Warn("closing connection", "error", err)
			_ = p.closeWith(closeCodeFor(err), "invalid frame")
			return causeProtocol
		}
	}
}

// closeCodeFor picks the close code sent after a dispatch failure.
func closeCodeFor(err error) int {
	switch {
	case errors.Is(err, router.ErrMalformedFrame):
		return websocket.CloseUnsupportedData
	case errors.Is(err, router.ErrMissingID),
		errors.Is(err, router.ErrMissingTarget),
		errors.Is(err, router.ErrMissingLocation):
		return websocket.ClosePolicyViolation
	}
	return websocket.CloseInternalServerErr
}

func (s *Server) track(p *peerConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[p] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(p *peerConn) {
	s.mu.Lock()
	delete(s.conns, p)
	s.mu.Unlock()
	s.wg.Done()
}
