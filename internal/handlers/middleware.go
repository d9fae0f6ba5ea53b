package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/auth"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/ratelimit"
)

const identityKey = "identity"

// Limiter is a per-identifier rate limiter.
type Limiter interface {
	Allow(ctx context.Context, id string) ratelimit.Result
}

// BlockChecker reports whether an address is blacklisted.
type BlockChecker interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// Blacklist rejects blocked addresses with 403. Cache failures let the
// request through.
func Blacklist(checker BlockChecker, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := ClientIP(c.Request)
		blocked, err := checker.IsBlocked(c.Request.Context(), ip)
		if err != nil {
			log.Warn("blacklist check failed, allowing request", zap.String("ip", ip), zap.Error(err))
			c.Next()
			return
		}
		if blocked {
			writeError(c, log, apperr.Forbidden("Acceso bloqueado"))
			return
		}
		c.Next()
	}
}

// RateLimit rejects callers over limiter's budget with 429 and the standard
// rate limit headers.
func RateLimit(limiter Limiter, message string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := limiter.Allow(c.Request.Context(), ClientIP(c.Request))
		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retry := int(time.Until(res.Reset).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			writeError(c, log, apperr.RateLimited(message))
			return
		}
		c.Next()
	}
}

// Authenticate verifies the bearer token and stores the caller identity.
func Authenticate(v auth.Verifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, log, apperr.Authentication("Sesión no válida para realizar la operación"))
			return
		}
		id, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRoles rejects authenticated callers outside allowed with 403.
func RequireRoles(log *zap.Logger, allowed ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.RequireRole(identityFrom(c), allowed...); err != nil {
			writeError(c, log, err)
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) auth.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}
	}
	id, _ := v.(auth.Identity)
	return id
}
