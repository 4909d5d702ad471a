package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes on a group already guarded by Middleware
func RegisterRoutes(rg *gin.RouterGroup, handler *Handler) {
	authGroup := rg.Group("/auth")
	{
		authGroup.GET("/me", handler.Me)
	}
}
