package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/core"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the context key for storing the user's email.
	ContextKeyEmail = "email"
	// ContextKeyIsAdmin is the context key for storing admin status.
	ContextKeyIsAdmin = "is_admin"

	// accessTokenParam carries the token for clients that cannot set headers, such as browsers opening a WebSocket.
	accessTokenParam = "access_token"
)

// AuthMiddleware creates a middleware that validates JWT tokens from the
// Authorization header or the access_token query parameter.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query(accessTokenParam)
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug().Msg("invalid authorization header format")
				abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "invalid authorization header format")
				return
			}
			token = parts[1]
		}
		if token == "" {
			logger.Debug().Msg("missing authorization header")
			abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "missing authorization header")
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			abortWithError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "invalid token")
			return
		}

		// Store user info in context
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin())

		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role. It must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			abortWithError(c, http.StatusForbidden, core.ErrCodeForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware limits requests per authenticated user.
func RateLimitMiddleware(limiter *rateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.allow(c.GetString(ContextKeyUserID)) {
			abortWithError(c, http.StatusTooManyRequests, core.ErrCodeRateLimited, "too many messages, slow down")
			return
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Log after request
		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("user_id", c.GetString(ContextKeyUserID)).
			Msg("http request")
	}
}

// currentUser returns the authenticated user ID. It writes a 401 and returns false when absent.
func currentUser(c *gin.Context, logger *zerolog.Logger) (string, bool) {
	uid := c.GetString(ContextKeyUserID)
	if uid == "" {
		logger.Error().Msg("user_id not found in context")
		writeError(c, http.StatusUnauthorized, core.ErrCodeUnauthorized, "unauthorized")
		return "", false
	}
	return uid, true
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func internalError(c *gin.Context) {
	writeError(c, http.StatusInternalServerError, core.ErrCodeInternal, "internal server error")
}
