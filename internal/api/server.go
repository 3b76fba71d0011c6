package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/config"
	"github.com/lfbot-project/lfbot/internal/db"
	intnet "github.com/lfbot-project/lfbot/internal/network"
	"github.com/lfbot-project/lfbot/internal/ribbon"
)

// Bot is the part of ribbon.Client the API drives.
type Bot interface {
	Snapshot() ribbon.Snapshot
	Reconnect() error
	Chat(ctx context.Context, content string) error
	JoinRoom(ctx context.Context, code string) error
	LeaveRoom(ctx context.Context) error
	SwitchBracket(ctx context.Context, bracket string) error
}

// JournalReader serves the recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]db.Entry, error)
	Count(ctx context.Context) (int64, error)
}

// Server is the status and control API for the bot.
type Server struct {
	cfg     *config.Config
	bot     Bot
	version string

	// Optional dependencies
	journal JournalReader
	metrics http.Handler

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, bot Bot, version string) *Server {
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:     cfg,
		bot:     bot,
		version: version,
	}
}

// SetDependencies injects the optional journal and metrics handler. Either
// may be nil, in which case the matching route answers 503.
func (s *Server) SetDependencies(journal JournalReader, metrics http.Handler) {
	s.journal = journal
	s.metrics = metrics
}

// Start listens on the configured port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.GetApplicationData().API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR so a restarted bot can rebind immediately
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("status API starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	apiCfg := s.cfg.GetApplicationData().API
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := apiCfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(apiCfg.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
	}

	monitor := router.Group("/api")
	{
		monitor.GET("/status", s.handleGetStatus)
		monitor.GET("/journal", s.handleGetJournal)
	}
	router.GET("/metrics", s.handleMetrics)

	control := router.Group("/api/control")
	control.Use(RequireToken(apiCfg.ControlToken))
	{
		control.POST("/reconnect", s.handleReconnect)
		control.POST("/chat", s.handleChat)
		control.POST("/join", s.handleJoin)
		control.POST("/leave", s.handleLeave)
		control.POST("/bracket", s.handleBracket)
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "lfbot status API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
