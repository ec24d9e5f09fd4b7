// Package api is the HTTP surface of trackd: session and action ingestion,
// the cached metrics read path, the snapshot stream, health and Prometheus
// endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/pkg/analytics"
	"github.com/harun/trackd/pkg/session"
	"github.com/rs/zerolog"
)

// DefaultAllowedOrigins mirrors the reporting frontend's development address.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// StatusFunc contributes extra fields to the health response.
type StatusFunc func(ctx context.Context) map[string]interface{}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Tracker        *session.Tracker
	Reader         *analytics.Reader
	Hub            *Hub
	Status         StatusFunc
	Version        string
	Logger         zerolog.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	server  *http.Server
	addr    string
	mu      sync.Mutex
	started time.Time
}

// NewServer validates cfg and builds the gin engine.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("session tracker is required")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("metrics reader is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Reader, originChecker(cfg.AllowedOrigins), cfg.Logger)
	}

	observability.EnsureRegistered()
	gin.SetMode(gin.ReleaseMode)

	s := &Server{cfg: cfg, started: time.Now()}
	s.engine = s.routes()
	return s, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}

func originChecker(origins []string) func(*http.Request) bool {
	if slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestContext())
	r.Use(requestLogger(s.cfg.Logger))
	r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	api := r.Group("/api")
	{
		api.POST("/session", s.handleSaveSession)
		api.POST("/session/refresh", s.handleRefreshSession)
		api.POST("/track", s.handleTrack)
		api.GET("/metrics", s.handleMetrics)
		api.GET("/metrics/stream", gin.WrapH(s.cfg.Hub))
	}

	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the snapshot stream hub.
func (s *Server) Hub() *Hub {
	return s.cfg.Hub
}

// Start binds the listener and serves in the background. It returns once
// the port is bound so bind errors surface to the caller.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr = ln.Addr().String()
	srv := s.server
	s.mu.Unlock()

	s.cfg.Logger.Info().Str("addr", ln.Addr().String()).Msg("Starting HTTP API")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error().Err(err).Msg("HTTP API server error")
		}
	}()
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop closes stream clients and gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.cfg.Logger.Info().Msg("Shutting down HTTP API")
	s.cfg.Hub.Close()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.cfg.Logger.Info().Msg("HTTP API stopped")
	return nil
}
