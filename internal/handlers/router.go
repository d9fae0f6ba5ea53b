package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const edgeLimitMessage = "Demasiadas peticiones. Intenta de nuevo más tarde."

// RouterConfig wires every route and the edge middlewares.
type RouterConfig struct {
	Orders      OrdersConfig
	System      SystemConfig
	Blacklist   BlockChecker // optional
	EdgeLimiter Limiter      // optional
	Log         *zap.Logger
}

// NewRouter builds the HTTP engine. /health sits in front of the edge checks.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/")
	if cfg.Blacklist != nil {
		api.Use(Blacklist(cfg.Blacklist, cfg.Log))
	}
	if cfg.EdgeLimiter != nil {
		api.Use(RateLimit(cfg.EdgeLimiter, edgeLimitMessage, cfg.Log))
	}
	RegisterOrdersRoutes(api, cfg.Orders)
	RegisterSystemRoutes(api, cfg.System)
	return r
}
