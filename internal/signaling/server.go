package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"
)

const (
	defaultMaxMessageBytes = 1 << 20
	defaultSendQueueBytes  = 1 << 20
	defaultWriteTimeout    = 10 * time.Second
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Coordinator *presence.Coordinator
	Census      *presence.Census

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Middleware wraps every route, typically with the HTTP server's origin
	// policy. Upgrades are accepted from any origin that gets past it.
	Middleware func(http.HandlerFunc) http.HandlerFunc

	MaxMessageBytes int64
	SendQueueBytes  int
	// IdleTimeout closes connections that have been silent this long. Zero
	// disables pings and idle reaping.
	IdleTimeout  time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Server implements the WebSocket presence/signaling surface and /stats.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	conns  map[*wsConn]struct{}
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.SendQueueBytes <= 0 {
		cfg.SendQueueBytes = defaultSendQueueBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		upgrader: websocket.Upgrader{
			// Origin checks are enforced by cfg.Middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*wsConn]struct{}),
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.wrap(s.handleWebSocket))
	mux.HandleFunc("GET /ws", s.wrap(s.handleWebSocket))
	mux.HandleFunc("GET /stats", s.wrap(s.handleStats))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	if s.cfg.Middleware == nil {
		return h
	}
	return s.cfg.Middleware(h)
}

// Close sends a going-away close frame to every connection and waits for
// their departures to be processed. Later upgrades are refused.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	s.wg.Wait()
}

// ConnCount reports the number of live WebSocket connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	c := newWSConn(conn, s.cfg.SendQueueBytes, s.cfg.WriteTimeout, s.log, s.metrics)
	if !s.track(c) {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.untrack(c)

	s.metrics.Inc(metrics.WSConnectionOpened)
	c.log.Info("websocket connected", "remote_addr", r.RemoteAddr)

	go c.writeLoop()
	if s.cfg.IdleTimeout > 0 && s.cfg.PingInterval > 0 {
		go c.pingLoop(s.cfg.PingInterval)
	}

	c.readLoop(s.cfg.MaxMessageBytes, s.cfg.IdleTimeout, func(data []byte) {
		s.dispatch(c, data)
	})

	c.close()
	if dep, ok := s.cfg.Coordinator.Leave(c); ok {
		c.log.Debug("departure processed on close", "room", dep.RoomID, "peer_id", dep.PeerID, "remaining", dep.Remaining)
	}
	s.metrics.Inc(metrics.WSConnectionClosed)
	c.log.Info("websocket disconnected", "remote_addr", r.RemoteAddr)
}

func (s *Server) dispatch(c *wsConn, data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		s.metrics.Inc(metrics.MessageMalformed)
		c.log.Debug("malformed message", "err", err)
		return
	}

	switch msg.Kind {
	case protocol.KindJoin:
		if _, err := s.cfg.Coordinator.Join(msg.Room, msg.PeerID, c); err != nil {
			s.metrics.Inc(metrics.MessageIgnored)
			c.log.Debug("join rejected", "err", err)
		}
	case protocol.KindSignal:
		s.cfg.Coordinator.Relay(c, msg.TargetPeerID, msg.Signal)
	case protocol.KindLeave:
		s.cfg.Coordinator.Leave(c)
	default:
		s.metrics.Inc(metrics.MessageIgnored)
		c.log.Debug("message ignored", "reason", msg.IgnoreReason)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Census.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
