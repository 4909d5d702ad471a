package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const userContextKey = "auth.user"

// Middleware resolves the caller and stores it on the gin context. Requests
// without a resolvable identity are rejected with 401.
func Middleware(resolver Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolver.FromRequest(c.Request)
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, ErrUnauthorized) {
				status = http.StatusInternalServerError
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "unauthorized", "message": err.Error()})
			return
		}
		SetUser(c, user)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles with 403
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": ErrUnauthorized.Error()})
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "role " + string(user.Role) + " may not perform this action"})
	}
}

// SetUser stores user as the caller of the request
func SetUser(c *gin.Context, user User) {
	c.Set(userContextKey, user)
}

// CurrentUser returns the user stored by Middleware
func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Me returns the authenticated caller
func (h *Handler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
