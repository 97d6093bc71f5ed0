// Package dashboard is the optional controller that exposes the runtime over
// HTTP: a WebSocket stream of bus events, JSON status, health and Prometheus
// metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/t031a5/internal/bus"
)

const (
	// EventsEndpoint is the path for WebSocket connections.
	EventsEndpoint = "/events"
	// StatusEndpoint serves the runtime status as JSON.
	StatusEndpoint = "/status"
	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"
	// MetricsEndpoint serves Prometheus metrics.
	MetricsEndpoint = "/metrics"

	// DefaultReplay is how many recent events a new client receives.
	DefaultReplay = 50

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 256
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("dashboard already running")

// StatusFunc produces the runtime status served on /status.
type StatusFunc func(ctx context.Context) any

// Config configures the dashboard server.
type Config struct {
	Addr   string
	Replay int
}

// Server streams bus events to WebSocket clients and serves runtime status.
type Server struct {
	cfg      Config
	bus      *bus.Bus
	status   StatusFunc
	metrics  http.Handler
	log      zerolog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu        sync.Mutex
	clients   map[*client]struct{}
	server    *http.Server
	listener  net.Listener
	subID     bus.SubscriptionID
	running   bool
	emergency bool
	startedAt time.Time
	sent      uint64

	wg sync.WaitGroup
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (cl *client) close() {
	cl.closeOnce.Do(func() { close(cl.send) })
}

// New creates a dashboard server. status and metrics may be nil.
func New(cfg Config, b *bus.Bus, status StatusFunc, metrics http.Handler, log zerolog.Logger) *Server {
	if cfg.Replay < 0 {
		cfg.Replay = 0
	}
	s := &Server{
		cfg:     cfg,
		bus:     b,
		status:  status,
		metrics: metrics,
		log:     log.With().Str("component", "dashboard").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local operator tool; the monitor page may be served from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(EventsEndpoint, s.handleEvents)
	mux.HandleFunc(StatusEndpoint, s.handleStatus)
	mux.HandleFunc(HealthEndpoint, s.handleHealth)
	if metrics != nil {
		mux.Handle(MetricsEndpoint, metrics)
	}
	s.mux = mux
	return s
}

// Handler returns the HTTP handler with all endpoints registered.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Start subscribes to the bus and begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if s.bus != nil {
		s.subID = s.bus.Subscribe(bus.EventType(""), s.broadcast)
	}
	s.running = true
	s.startedAt = time.Now()

	srv := s.server
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", ln.Addr().String()).Msg("dashboard listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("dashboard server error")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// ClientCount returns the number of connected stream clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stop disconnects clients and shuts the server down. Calling it again is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	subID := s.subID
	for cl := range s.clients {
		cl.close()
		delete(s.clients, cl)
	}
	s.mu.Unlock()

	if s.bus != nil && subID != "" {
		// The bus may already be closed during shutdown.
		_ = s.bus.Unsubscribe(subID)
	}

	err := srv.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	s.log.Info().Msg("dashboard stopped")
	return nil
}

// EmergencyStop marks the emergency and stops serving.
func (s *Server) EmergencyStop(ctx context.Context) error {
	s.mu.Lock()
	s.emergency = true
	s.mu.Unlock()
	s.log.Warn().Msg("dashboard emergency stop")
	return s.Stop(ctx)
}

// ServerStatus is the dashboard's own status.
type ServerStatus struct {
	Running   bool    `json:"running"`
	Emergency bool    `json:"emergency_stop"`
	Addr      string  `json:"addr"`
	Clients   int     `json:"clients"`
	Sent      uint64  `json:"events_sent"`
	Uptime    float64 `json:"uptime"`
}

// Status reports the dashboard state. It never calls back into the runtime.
func (s *Server) Status() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := ServerStatus{
		Running:   s.running,
		Emergency: s.emergency,
		Addr:      s.cfg.Addr,
		Clients:   len(s.clients),
		Sent:      s.sent,
	}
	if s.listener != nil {
		st.Addr = s.listener.Addr().String()
	}
	if s.running {
		st.Uptime = time.Since(s.startedAt).Seconds()
	}
	return st
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	replay := s.cfg.Replay
	if r.URL.Query().Get("replay") == "false" {
		replay = 0
	} else if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n >= 0 {
		replay = n
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		http.Error(w, "dashboard not serving", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		conn.Close()
		return
	}
	// Replay is queued under the lock so live events cannot interleave ahead
	// of history.
	if replay > 0 && s.bus != nil {
		for _, e := range s.bus.Recent(replay) {
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			select {
			case cl.send <- data:
			default:
			}
		}
	}
	s.clients[cl] = struct{}{}
	n := len(s.clients)
	s.wg.Add(2)
	s.mu.Unlock()
	s.log.Debug().Int("clients", n).Msg("client connected")

	go s.writePump(cl)
	go s.readPump(cl)
}

// writePump owns all writes to the connection.
func (s *Server) writePump(cl *client) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case message, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.drop(cl)
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.drop(cl)
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send commands.
func (s *Server) readPump(cl *client) {
	defer s.wg.Done()
	defer s.drop(cl)

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

func (s *Server) drop(cl *client) {
	s.mu.Lock()
	if _, ok := s.clients[cl]; ok {
		delete(s.clients, cl)
		cl.close()
	}
	s.mu.Unlock()
}

// broadcast runs on the bus subscription goroutine. A client whose buffer is
// full is disconnected.
func (s *Server) broadcast(e bus.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		s.log.Warn().Err(err).Str("event", string(e.Type)).Msg("failed to marshal event")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for cl := range s.clients {
		select {
		case cl.send <- data:
			s.sent++
		default:
			delete(s.clients, cl)
			cl.close()
			s.log.Warn().Msg("slow dashboard client dropped")
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, s.Status())
		return
	}
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		Clients   int    `json:"clients"`
		BusSubs   int    `json:"bus_subscriptions"`
		Emergency bool   `json:"emergency_stop"`
	}{
		Status:  "healthy",
		Service: "t031a5-dashboard",
		Clients: s.ClientCount(),
	}
	if s.bus != nil {
		health.BusSubs = s.bus.SubscriptionsCount()
	}
	s.mu.Lock()
	health.Emergency = s.emergency
	s.mu.Unlock()
	if health.Emergency {
		health.Status = "emergency"
	}
	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
