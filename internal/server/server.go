package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/roomrelay/internal/config"
	"github.com/BioHazard786/roomrelay/internal/metrics"
	"github.com/BioHazard786/roomrelay/internal/relay"
	"github.com/BioHazard786/roomrelay/internal/version"
)

var ErrServerClosed = http.ErrServerClosed

// Gauge names sampled on every /metrics scrape.
const (
	GaugeRooms       = "rooms"
	GaugeConnections = "connections"
)

const (
	livenessText = "WebSocket Server is running"
	healthText   = "Signaling server is healthy."
	drainingText = "Signaling server is shutting down."
)

// RoomInfo is one entry of the /rooms listing. Member IDs are never exposed.
type RoomInfo struct {
	RoomID  string `json:"room_id"`
	Members int    `json:"members"`
}

type Server struct {
	log     *slog.Logger
	cfg     *config.Server
	hub     *relay.Hub
	metrics *metrics.Metrics

	// draining is set once shutdown starts; /health then reports 503.
	draining atomic.Bool

	mux *http.ServeMux
	srv *http.Server
}

// New wires the HTTP routes around hub. The hub must be running before
// clients connect.
func New(cfg *config.Server, hub *relay.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		log:     logger,
		cfg:     cfg,
		hub:     hub,
		metrics: m,
		mux:     http.NewServeMux(),
	}

	reg := hub.Registry()
	m.Gauge(GaugeRooms, func() float64 { return float64(len(reg.Snapshot())) })
	m.Gauge(GaugeConnections, func() float64 { return float64(reg.Connections()) })

	s.registerRoutes()

	handler := chain(s.mux,
		recoverMiddleware(s.log),
		requestIDMiddleware(),
		requestLoggerMiddleware(s.log),
		s.corsMiddleware(),
	)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) Serve(l net.Listener) error {
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests. Upgraded websockets are hijacked and
// are closed by the hub, not here.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.draining.Store(true)
	return s.srv.Close()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeText(w, http.StatusOK, livenessText)
	})

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			writeText(w, http.StatusServiceUnavailable, drainingText)
			return
		}
		writeText(w, http.StatusOK, healthText)
	})

	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, version.Get())
	})

	s.mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.ExposeRooms {
			http.NotFound(w, r)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"rooms": s.rooms()})
	})

	s.mux.Handle("GET /metrics", metrics.PrometheusHandler(s.metrics))

	s.mux.HandleFunc("GET /ws", s.ServeWs())
}

func (s *Server) rooms() []RoomInfo {
	snap := s.hub.Registry().Snapshot()
	out := make([]RoomInfo, 0, len(snap))
	for id, n := range snap {
		out = append(out, RoomInfo{RoomID: id, Members: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}
