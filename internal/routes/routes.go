package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/challenges"
)

// Setup mounts the public API.
func Setup(r *gin.Engine, challengesHandler *challenges.Handler) {
	api := r.Group("/api/v1")
	challengesHandler.RegisterRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Not found", "details": c.Request.URL.Path})
	})
}
