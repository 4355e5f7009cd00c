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

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/document"
	"github.com/rickgao/mcpbus/internal/hub"
	"github.com/rickgao/mcpbus/internal/market"
)

// MarketService answers market history requests.
type MarketService interface {
	History(ctx context.Context, symbol, period, interval string) (market.HistoryResult, error)
}

// DocumentService fetches remote documents.
type DocumentService interface {
	Fetch(ctx context.Context, uri, mediaType string) (document.FetchResult, error)
}

// Config holds server settings.
type Config struct {
	ReadLimit        int64         // Largest frame accepted
	WriteTimeout     time.Duration // Per-frame write deadline
	PingInterval     time.Duration // Keepalive ping period, 0 disables
	SubscriberBuffer int           // Per-subscriber queue size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadLimit:        16 << 20,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		SubscriberBuffer: hub.DefaultBuffer,
	}
}

// Server accepts bus connections.
type Server struct {
	cfg       Config
	market    MarketService
	documents DocumentService
	hub       *hub.Hub
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	routes    []route
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	sessions   map[string]*session
	httpServer *http.Server
}

// New creates a server. A nil connector makes its channels reply with an
// error.
func New(cfg Config, markets MarketService, documents DocumentService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaults.SubscriberBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		market:    markets,
		documents: documents,
		hub:       hub.New(cfg.SubscriberBuffer, logger),
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
	}
	s.routes = []route{
		{prefix: ChannelMarket, handle: s.handleMarket},
		{prefix: ChannelDocument, handle: s.handleDocument},
		{prefix: ChannelDoc, handle: s.handleDocument},
	}
	return s
}

// Hub returns the server's pub/sub hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Handler returns the HTTP handler: WebSocket upgrades on "/", plus /health
// and /sse.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info("bus server listening", "addr", ln.Addr().String())

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, closes every open connection and
// subscription, and waits for HTTP handlers up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.hub.Close()

	s.mu.Lock()
	httpServer := s.httpServer
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}

	s.logger.Info("bus server shutting down", "connections", len(sessions))

	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

// Connections returns the number of open WebSocket connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := newSession(uuid.NewString(), ws, s.cfg.WriteTimeout)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Debug("connection opened", "conn_id", sess.id, "remote", r.RemoteAddr)

	s.serve(sess)

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	s.logger.Debug("connection closed", "conn_id", sess.id)
}
