package http_api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	api.POST("/pix/create", s.createPix)
	api.GET("/pix/status", s.pixStatus)
	api.POST("/subscriber", s.recordSubscriber)
	api.GET("/subscriber", s.getSubscriber)

	sessions := api.Group("/checkout/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.POST("/:id/submit", s.submitSession)
	sessions.DELETE("/:id", s.closeSession)
	sessions.GET("/:id/qrcode.png", s.sessionQRCode)
}
