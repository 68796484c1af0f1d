package http_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/core-coin/coinstore/internal/catalog"
	"github.com/core-coin/coinstore/internal/metrics"
	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/internal/orders"
	"github.com/core-coin/coinstore/internal/payreq"
	"github.com/core-coin/coinstore/internal/reconcile"
	"github.com/core-coin/coinstore/internal/settings"
	"github.com/core-coin/coinstore/internal/support"
	"github.com/core-coin/coinstore/internal/users"
	"github.com/core-coin/coinstore/internal/wallet"
	"github.com/core-coin/coinstore/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

func init() {
	// amounts are JSON numbers, as the storefront client expects
	decimal.MarshalJSONWithoutQuotes = true
}

// Services are the store components exposed over HTTP.
type Services struct {
	Catalog         *catalog.Catalog
	Users           *users.Directory
	Settings        *settings.Store
	Orders          *orders.Manager
	Wallet          *wallet.Service
	Reconcile       *reconcile.Engine
	PaymentRequests *payreq.Flow
	Support         *support.Desk
	// Idempotency is optional; without it Idempotency-Key headers are ignored.
	Idempotency models.IdempotencyStore
}

// Options configure the HTTP server.
type Options struct {
	Port        int
	JWTSecret   string
	JWTIssuer   string
	Development bool
}

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	// logger is the logger instance
	logger *logger.Logger

	// router is the HTTP router
	router *gin.Engine
	// port is the port on which the server will listen
	port int

	// server is the underlying HTTP server
	server *http.Server

	services  Services
	jwtSecret []byte
	jwtIssuer string
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Idempotency-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(services Services, opts Options, logger *logger.Logger) *HTTPServer {
	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Middleware(), requestLogger(logger))

	// Add CORS middleware
	router.Use(corsMiddleware())

	server := &HTTPServer{
		router:    router,
		port:      opts.Port,
		services:  services,
		logger:    logger,
		jwtSecret: []byte(opts.JWTSecret),
		jwtIssuer: opts.JWTIssuer,
	}

	// Define routes
	server.routes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%v", s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start the HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
