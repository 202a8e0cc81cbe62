package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Baaaki/resource-hub/internal/models"
	"github.com/Baaaki/resource-hub/internal/utils"
	"github.com/Baaaki/resource-hub/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Context keys set by AuthMiddleware
const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
	ContextRoleKey   = "user_role"
)

// TokenCookieName is the cookie login sets alongside the token in the body
const TokenCookieName = "token"

// IdentityResolver loads the current state of the user a token was issued to.
// It returns an error when the user no longer exists.
type IdentityResolver interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

func AuthMiddleware(jwtSecret string, users IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication credentials were not provided",
			})
			return
		}

		claims, err := utils.ValidateToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		// The role is read from the store, not the token, so role changes
		// and deletions apply immediately.
		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil || user == nil {
			logger.Log.Warn("Token for unknown user",
				zap.String("user_id", claims.UserID.String()),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextRoleKey, user.Role)

		c.Next()
	}
}

// extractToken reads "Authorization: Bearer <token>", falling back to the token cookie
func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			return "", false
		}
		return tokenString, true
	}

	if cookie, err := c.Cookie(TokenCookieName); err == nil && cookie != "" {
		return cookie, true
	}

	return "", false
}

// CurrentUser returns the user set by AuthMiddleware
func CurrentUser(c *gin.Context) (*models.User, error) {
	val, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, errors.New("no authenticated user in context")
	}
	user, ok := val.(*models.User)
	if !ok || user == nil {
		return nil, errors.New("invalid user in context")
	}
	return user, nil
}

func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRoleKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}

		if role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Permission denied",
			})
			return
		}

		c.Next()
	}
}
