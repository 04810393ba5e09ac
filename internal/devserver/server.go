// Package devserver is a small local chat server that speaks the same line
// protocol as the public one. It backs integration tests and offline
// development of the writer and reader tools.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/minechat/internal/config"
	"github.com/lawnchairsociety/minechat/internal/database"
	"github.com/lawnchairsociety/minechat/internal/logger"
	"github.com/lawnchairsociety/minechat/internal/moderation"
)

// Server serves the writer port, the reader port, and the WebSocket
// endpoint that speaks the writer protocol.
type Server struct {
	cfg      *config.ServerConfig
	accounts *Accounts
	hub      *Hub
	limiter  *ConnLimiter
	guard    *TokenGuard
	words    *moderation.WordFilter
	names    *moderation.NameFilter
	log      *slog.Logger

	// mu guards listeners and clients and orders track against Shutdown,
	// so wg never grows once Shutdown is waiting.
	mu        sync.Mutex
	listeners []net.Listener
	clients   map[Client]struct{}
	wg        sync.WaitGroup

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a Server backed by db. A nil log uses the process-wide logger.
func New(cfg *config.ServerConfig, db *database.Database, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Logger()
	}
	return &Server{
		cfg:      cfg,
		accounts: NewAccounts(db),
		hub:      NewHub(db, log),
		limiter:  NewConnLimiter(cfg.Connections),
		guard:    NewTokenGuard(cfg.TokenGuard),
		words:    moderation.NewWordFilter(cfg.Moderation.Words),
		names:    moderation.NewNameFilter(cfg.Moderation.Names),
		log:      log,
		clients:  make(map[Client]struct{}),
		shutdown: make(chan struct{}),
	}
}

// Run listens on every configured port and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := s.cfg.Listen
	errc := make(chan error, 3)

	serve := func(port int, name string, fn func(net.Listener) error) error {
		if port == 0 {
			return nil
		}
		address := net.JoinHostPort(lc.Host, strconv.Itoa(port))
		l, err := net.Listen("tcp", address)
		if err != nil {
			return fmt.Errorf("failed to start %s listener: %w", name, err)
		}
		s.log.Info("listening", "listener", name, "address", address)
		go func() { errc <- fn(l) }()
		return nil
	}

	err := errors.Join(
		serve(lc.WriterPort, "writer", s.ServeWriter),
		serve(lc.ReaderPort, "reader", s.ServeReader),
		serve(lc.WebSocketPort, "websocket", s.ServeWebSocket),
	)
	if err != nil {
		s.Shutdown()
		return err
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	s.Shutdown()
	return err
}

// ServeWriter accepts writer connections on l until Shutdown.
func (s *Server) ServeWriter(l net.Listener) error {
	return s.acceptLoop(l, s.handleWriter)
}

// ServeReader accepts reader connections on l until Shutdown.
func (s *Server) ServeReader(l net.Listener) error {
	return s.acceptLoop(l, s.handleReader)
}

func (s *Server) acceptLoop(l net.Listener, handle func(Client)) error {
	if !s.addListener(l) {
		return nil
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error("Error accepting connection", "error", err)
			continue
		}

		go s.handleConnection(conn, handle)
	}
}

func (s *Server) handleConnection(conn net.Conn, handle func(Client)) {
	remoteAddr := conn.RemoteAddr().String()
	ip := extractIP(remoteAddr)

	release, ok := s.limiter.Acquire(ip)
	if !ok {
		s.log.Warn("Connection rejected - limit exceeded", "remote_addr", remoteAddr, "ip", ip)
		conn.Close()
		return
	}
	defer release()

	s.serveClient(NewTCPClient(conn), handle)
}

// serveClient registers the client for Shutdown and runs handle on it.
// Clients arriving after Shutdown are closed immediately.
func (s *Server) serveClient(client Client, handle func(Client)) {
	if !s.track(client) {
		client.Close()
		return
	}
	defer func() {
		s.untrack(client)
		client.Close()
		s.log.Info("Client disconnected", "remote_addr", client.RemoteAddr())
	}()

	s.log.Info("Client connected", "remote_addr", client.RemoteAddr())
	handle(client)
}

// ServeWebSocket serves Handler on l until Shutdown.
func (s *Server) ServeWebSocket(l net.Listener) error {
	if !s.addListener(l) {
		return nil
	}

	httpServer := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	err := httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Handler returns the HTTP handler serving the writer protocol over
// WebSocket at the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WebSocket.Path, s.handleWebSocketUpgrade)
	return mux
}

func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	clientIP := realIP(r)

	release, ok := s.limiter.Acquire(clientIP)
	if !ok {
		s.log.Warn("WebSocket connection rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", clientIP)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}
	defer release()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := s.cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				s.log.Warn("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "error", err)
		return
	}
	if s.cfg.WebSocket.MaxMessageSize > 0 {
		wsConn.SetReadLimit(s.cfg.WebSocket.MaxMessageSize)
	}

	s.serveClient(NewWebSocketClient(wsConn), s.handleWriter)
}

// Hub returns the server's message hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown closes every listener and client and waits for handlers to exit.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		close(s.shutdown)
		for _, l := range s.listeners {
			l.Close()
		}
		for client := range s.clients {
			client.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.log.Info("Server shutdown complete")
	})
}

func (s *Server) addListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		l.Close()
		return false
	default:
	}
	s.listeners = append(s.listeners, l)
	return true
}

func (s *Server) track(client Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdown:
		return false
	default:
	}
	s.clients[client] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, client)
	s.wg.Done()
}
