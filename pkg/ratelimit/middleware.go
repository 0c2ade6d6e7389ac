package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"academy/internal/shared/utils/response"
	"academy/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware enforces the limiter on every route. Limiter errors fail open.
func Middleware(rateLimiter *RateLimiter) gin.HandlerFunc {
	log := logger.GetDefault()

	return func(c *gin.Context) {
		clientIP := getClientIP(c)
		limitType := getRateLimitType(c.FullPath())

		result, err := rateLimiter.IsAllowed(c.Request.Context(), clientIP, limitType)
		if err != nil {
			log.ErrorWithContext(c.Request.Context(), "Rate limit check failed", err,
				map[string]interface{}{"ip": clientIP, "type": string(limitType)})
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime, 10))

		if !result.Allowed {
			log.LogRateLimitExceeded(c.Request.Context(), clientIP, c.FullPath())
			response.RespondJSON(c, response.StatusError, http.StatusTooManyRequests,
				"Rate limit exceeded", nil, map[string]interface{}{
					"limit":      result.Limit,
					"reset_time": result.ResetTime,
				})
			c.Abort()
			return
		}

		c.Next()
	}
}

func getRateLimitType(path string) RateLimitType {
	switch {
	case strings.HasPrefix(path, "/health"),
		strings.HasPrefix(path, "/ping"):
		return RateLimitTypeHealth

	case strings.Contains(path, "/webhooks/"):
		return RateLimitTypeWebhook

	case strings.Contains(path, "/admin/"),
		strings.HasSuffix(path, "/waitlist/sweep"):
		return RateLimitTypeAdmin

	case strings.HasSuffix(path, "/respond"):
		return RateLimitTypeRespond

	case strings.Contains(path, "/waitlist"):
		return RateLimitTypeWaitlist

	case strings.HasPrefix(path, "/swagger"),
		strings.Contains(path, "/capacity"):
		return RateLimitTypePublic

	default:
		return RateLimitTypeDefault
	}
}

// getClientIP prefers proxy headers, then the socket address
func getClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xRealIP := c.GetHeader("X-Real-IP"); net.ParseIP(xRealIP) != nil {
		return xRealIP
	}

	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return ip
}
