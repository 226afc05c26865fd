package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"trading-orchestrator/config"
	"trading-orchestrator/internal/database"
	"trading-orchestrator/internal/engine"
	"trading-orchestrator/internal/events"
	"trading-orchestrator/internal/exchange"
	"trading-orchestrator/internal/pending"
	"trading-orchestrator/internal/profile"
	"trading-orchestrator/internal/scheduler"
	"trading-orchestrator/internal/secrets"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server is the operator HTTP API: the approval surface for semi-automated
// models plus model administration and emergency controls. Single operator,
// no auth layer; bind it to localhost or front it with a reverse proxy.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	repo       *database.Repository
	engine     *engine.Engine
	queue      *pending.Queue
	profiles   *profile.Engine
	sched      *scheduler.Scheduler
	secrets    *secrets.Store
	clients    *exchange.Factory
	bus        *events.Bus
	hub        *WSHub
	logger     zerolog.Logger
}

// NewServer wires the router
func NewServer(
	cfg config.ServerConfig,
	repo *database.Repository,
	eng *engine.Engine,
	queue *pending.Queue,
	profiles *profile.Engine,
	sched *scheduler.Scheduler,
	secretStore *secrets.Store,
	clients *exchange.Factory,
	bus *events.Bus,
	logger zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:   router,
		repo:     repo,
		engine:   eng,
		queue:    queue,
		profiles: profiles,
		sched:    sched,
		secrets:  secretStore,
		clients:  clients,
		bus:      bus,
		hub:      NewWSHub(logger),
		logger:   logger,
	}

	s.hub.Attach(bus)
	go s.hub.Run()

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		api.GET("/models", s.handleListModels)
		api.POST("/models", s.handleCreateModel)
		api.GET("/models/:id", s.handleGetModel)
		api.POST("/models/:id/environment", s.handleSetEnvironment)
		api.POST("/models/:id/automation", s.handleSetAutomation)
		api.POST("/models/:id/status", s.handleSetStatus)
		api.GET("/models/:id/settings", s.handleGetSettings)
		api.PUT("/models/:id/settings", s.handleUpdateSettings)
		api.GET("/models/:id/positions", s.handleListPositions)
		api.GET("/models/:id/trades", s.handleListTrades)
		api.POST("/models/:id/cycle", s.handleRunCycle)
		api.PUT("/models/:id/credentials", s.handlePutCredentials)
		api.DELETE("/models/:id/credentials/:env", s.handleDeleteCredentials)

		api.GET("/pending", s.handleListPending)
		api.GET("/models/:id/pending", s.handleListModelPending)
		api.POST("/pending/:id/approve", s.handleApprovePending)
		api.POST("/pending/:id/reject", s.handleRejectPending)

		api.GET("/profiles", s.handleListProfiles)
		api.POST("/profiles", s.handleCreateProfile)
		api.DELETE("/profiles/:id", s.handleDeleteProfile)
		api.POST("/models/:id/profile", s.handleApplyProfile)
		api.GET("/models/:id/recommendation", s.handleRecommendProfile)
		api.GET("/models/:id/sessions", s.handleListSessions)

		api.GET("/incidents", s.handleListIncidents)

		api.POST("/emergency/pause/:id", s.handleEmergencyPause)
		api.POST("/emergency/stop-all", s.handleEmergencyStopAll)
		api.POST("/trading/enable", s.handleTradingEnable)
		api.POST("/trading/disable", s.handleTradingDisable)
		api.GET("/trading", s.handleTradingStatus)
	}
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("operator API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"trading_enabled": s.sched.TradingEnabled(),
		"ws_clients":      s.hub.ClientCount(),
	})
}
