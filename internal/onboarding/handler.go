package onboarding

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bizhub/platform/platform-backend/internal/auth"
)

// Handler handles HTTP requests for tenant onboarding
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new onboarding handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers onboarding routes on a group already guarded by
// auth.Middleware
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	r := rg.Group("/onboarding")
	{
		r.GET("", h.GetState)
		r.POST("/initialize", h.Initialize)
		r.POST("/reset", h.Reset)
		r.POST("/complete", auth.RequireRole(auth.RoleOwner, auth.RoleAdmin), h.CompleteOnboarding)
		r.GET("/steps/:stepId", h.GetStep)
		r.PUT("/steps/:stepId", h.CompleteStep)
	}
}

// GetState returns the caller's onboarding, initializing it on first access
func (h *Handler) GetState(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	state, err := h.service.GetOrInitialize(c.Request.Context(), user.TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) Initialize(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	state, err := h.service.Initialize(c.Request.Context(), user.TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) Reset(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	state, err := h.service.Reset(c.Request.Context(), user.TenantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// CompleteOnboarding force-completes the caller's onboarding
func (h *Handler) CompleteOnboarding(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	state, err := h.service.CompleteOnboarding(c.Request.Context(), user.TenantID, user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) GetStep(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	step, err := h.service.GetStep(c.Request.Context(), user.TenantID, StepID(c.Param("stepId")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

// CompleteStep submits the payload of a step. The body is passed through
// undecoded; the registry owns its schema.
func (h *Handler) CompleteStep(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	state, err := h.service.CompleteStep(c.Request.Context(), user.TenantID, StepID(c.Param("stepId")), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) user(c *gin.Context) (auth.User, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": auth.ErrUnauthorized.Error()})
	}
	return user, ok
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation_failed",
			"message": validationErr.Error(),
			"fields":  validationErr.Fields,
		})
	case errors.Is(err, ErrUnknownStep):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_step", "message": err.Error()})
	case errors.Is(err, ErrStateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "state_not_found", "message": err.Error()})
	case errors.Is(err, ErrStepNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "step_not_found", "message": err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, auth.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": err.Error()})
	default:
		h.logger.Error("Onboarding request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal server error"})
	}
}
