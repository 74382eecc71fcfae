// Package server assembles the bridge: terminal sessions over WebSocket, the
// graph-command relay, and the auxiliary HTTP surface, all on one listener.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/comfy-pilot/bridge/internal/api"
	"github.com/comfy-pilot/bridge/internal/assist"
	"github.com/comfy-pilot/bridge/internal/config"
	"github.com/comfy-pilot/bridge/internal/envmgr"
	"github.com/comfy-pilot/bridge/internal/graph"
	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/mcp"
	"github.com/comfy-pilot/bridge/internal/relay"
	"github.com/comfy-pilot/bridge/internal/session"
	"github.com/comfy-pilot/bridge/internal/skills"
	"github.com/comfy-pilot/bridge/internal/workflow"
	"github.com/comfy-pilot/bridge/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	registry   *session.Registry
	log        *logging.Logger
}

// New wires the bridge from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := session.NewRegistry(log)
	commandRelay := relay.New(relay.Options{
		Timeout:    cfg.Relay.Timeout,
		ResultTTL:  cfg.Relay.ResultTTL,
		MaxResults: cfg.Relay.MaxResults,
	}, log)
	store := workflow.NewStore()
	graphClient := graph.NewClient(graph.Options{
		BaseURL:    cfg.Graph.URL,
		CatalogTTL: cfg.Graph.CatalogTTL,
		Timeout:    cfg.Graph.Timeout,
	}, log)

	// Sessions launch the configured command, or the auto-detected assistant
	// CLI when none is configured.
	detector := assist.New(log)
	defaultCommand := func() string {
		if cfg.Terminal.Command != "" {
			return cfg.Terminal.Command
		}
		return detector.Command()
	}

	skillsClient := skills.NewClient(skills.Options{}, log)
	envManager := envmgr.New("", log)

	handlers := api.NewHandlers(commandRelay, store, graphClient, registry, skillsClient, envManager, mcp.ToolNames(), log)
	wsHandler := ws.NewHandler(registry, defaultCommand, log)
	wsHandler.ReadBufferSize = cfg.Terminal.ReadBufferSize

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control"},
	}))
	if cfg.RateLimit.Enabled {
		router.Use(rateLimiter(cfg.RateLimit))
	}

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws/claude-terminal", wsHandler.HandleTerminal)

	router.GET("/claude-code/graph-command", handlers.PollCommand)
	router.POST("/claude-code/graph-command", handlers.PostCommand)
	router.GET("/claude-code/graph-command/result/:id", handlers.AbandonedResult)
	router.GET("/claude-code/workflow", handlers.GetWorkflow)
	router.POST("/claude-code/workflow", handlers.PostWorkflow)
	router.POST("/claude-code/run-node", handlers.RunNode)
	router.GET("/claude-code/mcp-status", handlers.McpStatus)
	router.GET("/claude-code/stats", handlers.Stats)
	router.GET("/claude-code/skills", handlers.Skills)
	router.GET("/claude-code/env-status", handlers.EnvStatus)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:   router,
		registry: registry,
		log:      log,
	}
}

// Router exposes the underlying engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("bridge listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, drains in-flight requests, and tears
// down every live terminal session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.registry.CloseAll()
	return err
}

func requestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// The relay poll endpoint fires continuously; logging it is noise.
		if c.Request.Method == http.MethodGet && c.Request.URL.Path == "/claude-code/graph-command" {
			return
		}
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func rateLimiter(cfg config.RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
