package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/threecolor/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/threecolor/internal/ipc/ring"
	"github.com/GriffinCanCode/threecolor/internal/logging"
	"github.com/GriffinCanCode/threecolor/internal/process/supervisor"
)

const shutdownTimeout = 5 * time.Second

// BufferStats reports the ring state
type BufferStats interface {
	Stats() ring.Stats
}

// Progress reports the search state
type Progress interface {
	Snapshot() supervisor.Snapshot
}

// Config contains server configuration
type Config struct {
	Addr        string
	Gatherer    prometheus.Gatherer
	Metrics     *monitoring.Metrics
	Logger      *logging.Logger
	Development bool

	// RequestsPerSecond and Burst bound the whole endpoint
	RequestsPerSecond int
	Burst             int
}

// Buffer is the ring section of the health response
type Buffer struct {
	Capacity int `json:"capacity"`
	Used     int `json:"used"`
	Free     int `json:"free"`
}

// Health is the /health response body
type Health struct {
	Status string `json:"status"`
	Best   *int   `json:"best"`
	Frames int    `json:"frames"`
	Buffer Buffer `json:"buffer"`
}

// Server wraps the HTTP server and its sources
type Server struct {
	router   *gin.Engine
	addr     string
	buffer   BufferStats
	progress Progress
	logger   *logging.Logger
}

// New creates the endpoint. progress may be nil in a generator.
func New(cfg Config, buffer BufferStats, progress Progress) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(cfg.Metrics))
	router.Use(globalRateLimit(cfg.RequestsPerSecond, cfg.Burst))

	s := &Server{
		router:   router,
		addr:     cfg.Addr,
		buffer:   buffer,
		progress: progress,
		logger:   cfg.Logger,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	stats := s.buffer.Stats()
	snap := supervisor.Snapshot{Best: -1}
	if s.progress != nil {
		snap = s.progress.Snapshot()
	}

	resp := Health{
		Status: "ok",
		Frames: snap.Frames,
		Buffer: Buffer{
			Capacity: stats.Capacity,
			Used:     stats.Used,
			Free:     stats.Free,
		},
	}
	if !stats.Alive {
		resp.Status = "stopping"
	}
	if snap.Best >= 0 {
		best := snap.Best
		resp.Best = &best
	}

	c.JSON(http.StatusOK, resp)
}

// Run serves until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// globalRateLimit creates a global rate limiting middleware.
func globalRateLimit(rps, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
