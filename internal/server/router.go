package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FACorreiaa/loci-challenges/internal/app/middleware"
	"github.com/FACorreiaa/loci-challenges/internal/routes"
)

// SetupRouter configures and returns the Gin router with all middleware and routes
func (s *Server) SetupRouter() *gin.Engine {
	switch s.cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(s.cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.OTELGinMiddleware(s.cfg.Observability.ServiceName))
	r.Use(middleware.LoggerMiddleware(s.logger))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.SecurityMiddleware())
	r.Use(middleware.UserIdentityMiddleware())

	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.Ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "engine": s.Stats()})
	})

	routes.Setup(r, s.engine.Handler)

	return r
}
