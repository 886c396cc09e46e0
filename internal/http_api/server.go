package http_api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// SessionManager runs the server-side checkout sessions.
type SessionManager interface {
	Create(ctx context.Context, buyer *models.Buyer) (models.CheckoutSnapshot, error)
	Submit(ctx context.Context, id string, buyer *models.Buyer) (models.CheckoutSnapshot, error)
	Get(ctx context.Context, id string) (models.CheckoutSnapshot, error)
	Close(ctx context.Context, id string) error
}

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	logger *logger.Logger

	router *gin.Engine
	port   int
	server *http.Server

	checkout models.CheckoutI
	sessions SessionManager
	gatherer prometheus.Gatherer
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(checkout models.CheckoutI, sessions SessionManager, gatherer prometheus.Gatherer, port int, development bool, logger *logger.Logger) models.APIServer {
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(corsMiddleware())

	server := &HTTPServer{
		router:   router,
		port:     port,
		checkout: checkout,
		sessions: sessions,
		gatherer: gatherer,
		logger:   logger,
	}

	server.routes()

	return server
}

// Start starts the HTTP server
func (s *HTTPServer) Start() {
	addr := fmt.Sprintf("0.0.0.0:%v", s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Fatal("Failed to start the HTTP server", "error", err)
	}
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
