// Package api exposes the advisory engine over HTTP: read endpoints for
// the latest advice, traces and thresholds, guarded mutating endpoints for
// reload and state wipe, Prometheus metrics and a websocket event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"futures-advisor/config"
	"futures-advisor/internal/advisor"
	"futures-advisor/internal/audit"
	"futures-advisor/internal/auth"
	"futures-advisor/internal/circuit"
	"futures-advisor/internal/events"
	"futures-advisor/internal/history"
	"futures-advisor/internal/logging"
)

// RateLimiter provides simple in-memory rate limiting per client IP
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server is the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      *advisor.Engine
	eventBus    *events.EventBus
	breaker     *circuit.Breaker
	repo        *history.Repository
	trail       *audit.Trail
	authManager *auth.Manager
	config      config.ServerConfig
	rateLimiter *RateLimiter
	hub         *WSHub
	logger      *logging.Logger
	startedAt   time.Time
}

// NewServer creates the API server. Breaker, repo and authManager may be
// nil; the corresponding endpoints degrade or disappear.
func NewServer(
	cfg config.ServerConfig,
	engine *advisor.Engine,
	eventBus *events.EventBus,
	breaker *circuit.Breaker,
	repo *history.Repository,
	trail *audit.Trail,
	authManager *auth.Manager,
	logger *logging.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if trail == nil {
		trail = audit.NopTrail()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 120
	}
	window := time.Duration(cfg.RateLimitWindow) * time.Second
	if window <= 0 {
		window = time.Minute
	}

	server := &Server{
		router:      router,
		engine:      engine,
		eventBus:    eventBus,
		breaker:     breaker,
		repo:        repo,
		trail:       trail,
		authManager: authManager,
		config:      cfg,
		rateLimiter: NewRateLimiter(limit, window),
		hub:         NewWSHub(logger),
		logger:      logger.WithComponent("api"),
		startedAt:   time.Now(),
	}

	server.setupRoutes()

	// The stream carries every bus event to connected clients.
	if eventBus != nil {
		eventBus.SubscribeAll(server.hub.BroadcastEvent)
	}
	go server.hub.Run()

	return server
}

func allowedOrigins(csv string) []string {
	if csv == "" {
		return []string{"http://localhost:5173", "http://localhost:8087"}
	}
	parts := strings.Split(csv, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// rateLimitMiddleware limits requests per client IP
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api/v1")
	api.Use(s.rateLimitMiddleware())
	{
		api.GET("/advice", s.handleListAdvice)
		api.GET("/advice/:symbol", s.handleGetAdvice)
		api.GET("/trace/:symbol", s.handleGetTrace)
		api.GET("/tags", s.handleGetTags)
		api.GET("/thresholds", s.handleGetThresholds)
		api.GET("/status", s.handleStatus)

		if s.repo != nil {
			api.GET("/history/:symbol", s.handleGetHistory)
		}

		// Mutating endpoints carry the operator token when auth is on.
		mutating := api.Group("")
		if s.authManager != nil {
			mutating.Use(auth.Middleware(s.authManager))
		}
		mutating.POST("/thresholds/reload", s.handleReloadThresholds)
		mutating.DELETE("/state/:symbol", s.handleClearState)
		mutating.DELETE("/state", s.handleClearState)
	}
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	readTimeout := time.Duration(s.config.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(s.config.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("HTTP server starting", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// errorResponse sends a uniform error body
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse sends a uniform success body
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
