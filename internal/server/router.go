package server

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/artemis/fleetmigrate/internal/config"
	"github.com/artemis/fleetmigrate/internal/executor"
	"github.com/artemis/fleetmigrate/internal/migration"
	"github.com/artemis/fleetmigrate/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed dist/*
var webUI embed.FS

// Server is the operator-facing HTTP facade: it starts migrations through
// the migration.Orchestrator, reports their status, and broadcasts each
// finished run over a WebSocket. Its stack-lifecycle endpoints (list,
// get-compose, manage, deploy) call the executor directly.
type Server struct {
	config       *config.Config
	hosts        *config.HostRegistry
	orchestrator *migration.Orchestrator
	exec         *executor.Executor
	logger       *observability.Logger
	health       *observability.HealthChecker
	metrics      *observability.Metrics
	hub          *Hub
	router       *gin.Engine
}

// NewServer wires the HTTP server from its already-constructed
// dependencies. exec is used directly for the stack-lifecycle endpoints
// (list/get-compose/manage/deploy) that act outside of a migration run.
func NewServer(
	cfg *config.Config,
	hosts *config.HostRegistry,
	orchestrator *migration.Orchestrator,
	exec *executor.Executor,
	healthChecker *observability.HealthChecker,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:       cfg,
		hosts:        hosts,
		orchestrator: orchestrator,
		exec:         exec,
		logger:       logger,
		health:       healthChecker,
		metrics:      metrics,
		hub:          NewHub(logger),
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(s.loggingMiddleware())
	r.Use(s.corsMiddleware())

	r.GET("/health", s.health.HealthHandler())
	r.GET("/ready", s.health.ReadyHandler())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/resources/counts", s.GetResourceCounts)
		api.GET("/hosts", s.ListHosts)
		api.GET("/hosts/:host_id/stacks", s.ListStacks)
		api.GET("/hosts/:host_id/stacks/:stack/compose", s.GetCompose)
		api.POST("/hosts/:host_id/stacks/:stack/manage", s.ManageStack)
		api.POST("/hosts/:host_id/stacks/:stack/deploy", s.DeployStack)

		api.POST("/migrate", s.StartMigration)
		api.GET("/migrate/:id/status", s.GetMigrationStatus)
		api.POST("/migrate/:id/cancel", s.CancelMigration)
	}

	r.GET("/ws", s.HandleWebSocket)

	s.setupStaticFiles(r)

	s.router = r
}

// setupStaticFiles configures serving of embedded web UI
func (s *Server) setupStaticFiles(r *gin.Engine) {
	distFS, err := fs.Sub(webUI, "dist")
	if err != nil {
		s.logger.Warn("web UI not embedded, will not serve static files")
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, "fleetmigrate API server running. Web UI not available.")
		})
		return
	}

	r.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.FileFromFS(c.Request.URL.Path, http.FS(distFS))
	})

	r.StaticFS("/assets", http.FS(distFS))
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/ready" {
			c.Next()
			return
		}

		c.Next()

		s.logger.InfoRedacted("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// corsMiddleware handles CORS
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("starting HTTP server",
		zap.String("addr", s.config.HTTPAddr),
	)

	return s.router.Run(s.config.HTTPAddr)
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping HTTP server")
	s.hub.Stop()
	return nil
}

// Broadcast sends a message to all connected WebSocket clients
func (s *Server) Broadcast(message []byte) {
	s.hub.Broadcast(message)
}

// GetRouter returns the gin router for direct route registration
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
