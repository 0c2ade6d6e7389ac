package middleware

import (
	"net/http"
	"strings"

	"academy/internal/shared/config"
	"academy/internal/shared/utils/response"
	"academy/internal/users"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
)

// JWTAuthWithConfig verifies HMAC access tokens issued by the auth provider
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	log := logger.GetDefault()

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondError(c, http.StatusUnauthorized, "Authorization header is required", nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.RespondError(c, http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWT.Secret), nil
		})
		if err != nil || !token.Valid {
			log.LogAuthFailure(c.Request.Context(), "invalid token", c.ClientIP())
			response.RespondError(c, http.StatusUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.RespondError(c, http.StatusUnauthorized, "invalid token claims", nil)
			c.Abort()
			return
		}
		if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
			response.RespondError(c, http.StatusUnauthorized, "invalid token type", nil)
			c.Abort()
			return
		}

		userID, _ := claims["user_id"].(string)
		role, _ := claims["role"].(string)
		if userID == "" || !users.IsValidRole(role) {
			log.LogAuthFailure(c.Request.Context(), "missing subject or role", c.ClientIP())
			response.RespondError(c, http.StatusUnauthorized, "token is missing user or role", nil)
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextUserEmail, claims["email"])
		c.Set(ContextUserRole, role)
		c.Next()
	}
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(string(users.RoleAdmin))
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok {
			response.RespondError(c, http.StatusUnauthorized, "user role not found in context", nil)
			c.Abort()
			return
		}

		for _, r := range requiredRoles {
			if string(role) == r {
				c.Next()
				return
			}
		}

		response.RespondError(c, http.StatusForbidden, "Insufficient permissions", nil)
		c.Abort()
	}
}

// GetUserID returns the authenticated subject
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// GetUserRole returns the authenticated role
func GetUserRole(c *gin.Context) (users.Role, bool) {
	v, exists := c.Get(ContextUserRole)
	if !exists {
		return "", false
	}
	role, ok := v.(string)
	return users.Role(role), ok
}
