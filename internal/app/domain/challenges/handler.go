package challenges

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/middleware"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// PoolService serves refreshed pools.
type PoolService interface {
	Refresh(ctx context.Context, userID string, loc models.Location) (PoolView, error)
}

// CompletionRecorder stores completions.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, userID, challengeID string) (models.Completion, error)
}

type Handler struct {
	pools  PoolService
	store  CompletionRecorder
	events Publisher
	logger *zap.Logger
}

func NewHandler(pools PoolService, store CompletionRecorder, events Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		pools:  pools,
		store:  store,
		events: events,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/challenges")
	group.GET("/nearby", h.GetNearby)
	group.POST("/generate", h.Generate)
	group.POST("/:id/complete", h.Complete)
}

// handleChallengeError provides consistent error handling for challenge operations
func (h *Handler) handleChallengeError(c *gin.Context, err error, operation string) {
	switch {
	case errors.Is(err, models.ErrMissingLocation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Location required",
			"details": "Provide a valid latitude and longitude",
		})
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": err.Error(),
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Challenge not found",
			"details": "The challenge does not exist or was never stored",
		})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Challenge already completed",
			"details": "You have already completed this challenge",
		})
	default:
		h.logger.Error("Challenge operation failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to " + operation,
			"details": "An app error occurred. Please try again later.",
		})
	}
}

func parseLocation(latRaw, lngRaw string) (models.Location, error) {
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return models.Location{}, models.ErrMissingLocation
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return models.Location{}, models.ErrMissingLocation
	}
	loc := models.Location{Latitude: lat, Longitude: lng}
	if !loc.Valid() {
		return models.Location{}, models.ErrMissingLocation
	}
	return loc, nil
}

// GetNearby returns the caller's current pool.
// @Router /api/v1/challenges/nearby [get]
func (h *Handler) GetNearby(c *gin.Context) {
	loc, err := parseLocation(c.Query("lat"), c.Query("lng"))
	if err != nil {
		h.handleChallengeError(c, err, "load challenges")
		return
	}

	view, err := h.pools.Refresh(c.Request.Context(), middleware.GetUserIDFromContext(c), loc)
	if err != nil {
		h.handleChallengeError(c, err, "load challenges")
		return
	}
	c.JSON(http.StatusOK, view)
}

type generateRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

// Generate runs the same refresh as GetNearby for a location sent in the body, so the caller
// ends up with the bucket's shared pool.
// @Router /api/v1/challenges/generate [post]
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleChallengeError(c, models.ErrMissingLocation, "generate challenges")
		return
	}

	loc := models.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	view, err := h.pools.Refresh(c.Request.Context(), middleware.GetUserIDFromContext(c), loc)
	if err != nil {
		h.handleChallengeError(c, err, "generate challenges")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Complete records a completion and announces it so the caller's pool gets refreshed.
// @Router /api/v1/challenges/{id}/complete [post]
func (h *Handler) Complete(c *gin.Context) {
	userID := middleware.GetUserIDFromContext(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User identification required"})
		return
	}

	completion, err := h.store.RecordCompletion(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleChallengeError(c, err, "complete challenge")
		return
	}

	evt := models.ChallengeCompletedEvent{
		UserID:      completion.UserID,
		ChallengeID: completion.ChallengeID,
		CompletedAt: completion.CompletedAt,
	}
	if evt.CompletedAt.IsZero() {
		evt.CompletedAt = time.Now().UTC()
	}
	if err := h.events.PublishCompleted(c.Request.Context(), evt); err != nil {
		h.logger.Warn("Failed to publish completion event", zap.String("challenge_id", evt.ChallengeID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, completion)
}
