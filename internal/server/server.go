// Package server exposes a running monitor over HTTP: the latest view as
// JSON, a websocket stream of views, Prometheus metrics and a health check.
package server

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opd-ai/tapwatch/internal/logging"
	"github.com/opd-ai/tapwatch/internal/monitor"
)

// DefaultMetricsPath is used when no metrics path is configured.
const DefaultMetricsPath = "/metrics"

// Source is what the server reads from the running monitor.
type Source interface {
	Latest() (monitor.View, bool)
	Interfaces() []string
	DefaultRouteInterfaces() []string
}

// HealthFunc reports overall health and a JSON-encodable detail document.
type HealthFunc func() (healthy bool, report any)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and lifecycle messages.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithMetricsPath mounts the Prometheus handler at path.
func WithMetricsPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.metricsPath = path
		}
	}
}

// WithHealth installs the /healthz reporter.
func WithHealth(fn HealthFunc) Option {
	return func(s *Server) { s.health = fn }
}

// WithMonitorMetrics exports the poll loop counters.
func WithMonitorMetrics(m *monitor.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server is the HTTP surface. Sinks returns the sinks that must be attached
// to the monitor so the websocket stream and the gauges stay current.
type Server struct {
	source      Source
	logger      logging.Logger
	metricsPath string
	health      HealthFunc
	metrics     *monitor.Metrics

	engine   *gin.Engine
	hub      *Hub
	exporter *Exporter

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds the router. Nothing listens until Start.
func New(source Source, opts ...Option) *Server {
	s := &Server{
		source:      source,
		logger:      logging.Nop(),
		metricsPath: DefaultMetricsPath,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	s.exporter = NewExporter(s.metrics)
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api/v1")
	{
		api.GET("/view", s.handleView)
		api.GET("/interfaces", s.handleInterfaces)
		api.GET("/ws", s.hub.Serve)
	}
	r.GET(s.metricsPath, gin.WrapH(s.exporter.Handler()))
	r.GET("/healthz", s.handleHealth)
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	return r
}

// requestLogger routes gin's access log through the structured logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"remote", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleView(c *gin.Context) {
	v, ok := s.source.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no sample yet"})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleInterfaces(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"interfaces":   s.source.Interfaces(),
		"defaultRoute": s.source.DefaultRouteInterfaces(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	healthy, report := s.health()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Sinks returns the sinks feeding the websocket stream and the exporter.
func (s *Server) Sinks() []monitor.Sink {
	return []monitor.Sink{s.hub, s.exporter}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Exporter returns the Prometheus exporter.
func (s *Server) Exporter() *Exporter {
	return s.exporter
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return fmt.Errorf("server already listening on %s", s.listener.Addr())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server", "error", err)
		}
	}()

	s.srv, s.listener, s.done = srv, ln, done
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "metrics_path", s.metricsPath)
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown disconnects websocket clients and stops the listener, waiting
// for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	s.hub.Close()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
