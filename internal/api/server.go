// Package api serves the prayer schedule, azan controls and service state
// over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/internal/state"
)

// DefaultStaleAfter is how old the last successful refresh may be before
// /health reports the schedule as stale.
const DefaultStaleAfter = time.Hour

// Refresher runs a schedule refresh on demand
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Resetter runs the reset sequence on demand
type Resetter interface {
	Trigger() error
}

// Options wires the server to the rest of the service. Refresher, Resetter,
// Player and Shadow are optional; their endpoints answer 503 when unset.
type Options struct {
	StateManager *state.Manager
	Cache        *prayertime.Cache
	Player       *azan.Player
	Shadow       *shadowstate.Tracker
	Refresher    Refresher
	Resetter     Resetter

	// AudioDir is served under /audio when set
	AudioDir string

	Clock      clock.Clock
	StaleAfter time.Duration
	Port       int
}

// Server provides HTTP API endpoints for solatsync
type Server struct {
	opts   Options
	clock  clock.Clock
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options, logger *zap.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		opts:   opts,
		clock:  opts.Clock,
		logger: logger.Named("api"),
	}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/", s.handleSitemap)
	r.GET("/health", s.handleHealth)

	group := r.Group("/api")
	group.GET("/prayer/today", resolve(s.handleToday))
	group.GET("/prayer/next", resolve(s.handleNext))
	group.GET("/zones", resolve(s.handleZones))
	group.GET("/state", resolve(s.handleGetState))
	group.GET("/shadow", resolve(s.handleShadow))
	group.POST("/refresh", resolve(s.handleRefresh))
	group.POST("/reset", resolve(s.handleReset))
	group.POST("/azan/play", resolve(s.handlePlay))

	if s.opts.AudioDir != "" {
		r.Static("/audio", s.opts.AudioDir)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

// requestLogger logs each request at debug level
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()))
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP API server stopped")
	return nil
}
