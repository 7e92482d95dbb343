package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	tokenHeader = "Authorization"
	tokenPrefix = "Bearer "

	// Context keys set by the middleware.
	ContextUserIDKey = "auth_user_id"
	ContextRoleKey   = "auth_role"
	ContextNameKey   = "auth_name"
)

// Middleware returns a gin handler that rejects requests without a valid
// bearer token and injects the caller's identity into the request context.
func Middleware(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(tokenHeader)
		if authHeader == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing authorization header"})
			return
		}

		if !strings.HasPrefix(authHeader, tokenPrefix) {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid authorization header format"})
			return
		}

		token := strings.TrimPrefix(authHeader, tokenPrefix)
		claims, err := signer.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid or expired token"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid subject in token"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRoleKey, claims.Role)
		c.Set(ContextNameKey, claims.Name)

		c.Next()
	}
}

// CallerID retrieves the authenticated user id from the gin context.
func CallerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// CallerRole retrieves the authenticated role from the gin context.
func CallerRole(c *gin.Context) (Role, bool) {
	v, ok := c.Get(ContextRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(Role)
	return role, ok
}

// CallerName retrieves the authenticated display name from the gin context.
func CallerName(c *gin.Context) string {
	return c.GetString(ContextNameKey)
}
