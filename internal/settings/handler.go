package settings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bizhub/platform/platform-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	r := rg.Group("/settings")
	r.GET("/profile", h.GetProfile)
	r.GET("/integrations", h.Integrations)
	r.GET("/billing", h.Billing)
}

func (h *Handler) GetProfile(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profile, err := h.service.GetProfile(c.Request.Context(), user.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) Integrations(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	items, err := h.service.ListIntegrations(c.Request.Context(), user.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []Integration{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Billing(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	sub, err := h.service.GetSubscription(c.Request.Context(), user.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func respondError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
}
