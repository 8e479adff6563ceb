package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"carpool/internal/domain"
)

// Identity headers set by the API gateway after authentication.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// RoleAdmin grants access to the operator endpoints.
const RoleAdmin = "admin"

const (
	userIDKey   = "identity.user_id"
	userRoleKey = "identity.role"
)

// IdentityMiddleware copies the caller identity into the gin context and
// rejects anonymous requests.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header"})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(userRoleKey, c.GetHeader(HeaderUserRole))
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller has one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, c.GetString(userRoleKey)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller id.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// ActorFrom returns the caller as a negotiating party. The second return
// value is false when the role is neither driver nor passenger.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	side, ok := domain.ParseSide(c.GetString(userRoleKey))
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: c.GetString(userIDKey), Side: side}, true
}
