package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
)

// writeError maps err onto an HTTP response. Operational errors carry their
// own message; anything else is logged and answered with a generic 500.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	if ae, ok := apperr.As(err); ok {
		body := gin.H{"error": ae.Message, "code": ae.Code}
		if ae.Details != "" {
			body["message"] = ae.Details
		}
		if ae.Status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		} else if cause := errors.Unwrap(ae); cause != nil {
			log.Info("request rejected",
				zap.String("path", c.FullPath()),
				zap.String("code", ae.Code),
				zap.Error(cause))
		}
		c.AbortWithStatusJSON(ae.Status, body)
		return
	}
	log.Error("unexpected error",
		zap.String("path", c.FullPath()),
		zap.String("ip", ClientIP(c.Request)),
		zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": apperr.InternalMessage})
}

// ClientIP resolves the caller address from proxy headers: the first
// X-Forwarded-For entry, then X-Real-IP, then CF-Connecting-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
