// Package server exposes the delivery service over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cockpit/internal/delivery"
	"cockpit/internal/ledger"
)

// Server routes recording uploads, deliveries and downloads to a ledger and
// fans changes out to feed subscribers.
type Server struct {
	ledger ledger.Ledger
	hub    *Hub
	logger *zap.Logger
	now    func() time.Time
	engine *gin.Engine
}

type Option func(*Server)

// WithClock overrides the delivery timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(store ledger.Ledger, origins []string, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ledger: store,
		hub:    NewHub(logger.Named("feed")),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(origins))
	s.engine = engine

	s.healthCheckRoutes()
	s.recordingRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) healthCheckRoutes() {
	group := s.engine.Group("")
	{
		group.GET("/healthz/", s.healthz)
		group.GET("/readiness/", s.readiness)
	}
}

func (s *Server) recordingRoutes() {
	group := s.engine.Group("/recordings")
	{
		group.POST("", s.createRecording)
		group.PATCH("", s.deliverRecording)
		group.GET("", s.listRecordings)
		group.GET("/:id", s.downloadRecording)
	}
	s.engine.GET("/ws/recordings", s.hub.Serve)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{delivery.HeaderRecordedAt, delivery.HeaderFileName},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
