package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/audit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/auth"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/governance"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/validation"
)

// SystemConfig groups dependencies for the settings routes.
type SystemConfig struct {
	Governance *governance.Service
	Verifier   auth.Verifier
	Log        *zap.Logger
}

// RegisterSystemRoutes registers the admin-only operating mode routes.
func RegisterSystemRoutes(r gin.IRouter, cfg SystemConfig) {
	log := cfg.Log
	v := validation.New()
	g := r.Group("/system", Authenticate(cfg.Verifier, log), RequireRoles(log, auth.RoleAdmin))

	g.GET("/settings", func(c *gin.Context) {
		st, err := cfg.Governance.Settings(c.Request.Context(), identityFrom(c))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	g.POST("/settings", func(c *gin.Context) {
		var req validation.SettingsRequest
		if err := validation.Bind(c, &req); err != nil {
			writeError(c, log, err)
			return
		}
		if err := validation.Check(v, req, "Datos de configuración inválidos"); err != nil {
			writeError(c, log, err)
			return
		}
		change := governance.ModeChange{Mode: req.Mode, Reason: req.Reason, EmergencyMessage: req.EmergencyMessage}
		who := audit.Requester{IP: ClientIP(c.Request), UserAgent: c.Request.UserAgent()}
		correlationID, st, err := cfg.Governance.ChangeMode(c.Request.Context(), identityFrom(c), change, who)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"mode":          st.Mode,
			"correlationId": correlationID,
		})
	})
}
