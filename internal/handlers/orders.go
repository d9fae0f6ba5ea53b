package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/audit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/auth"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/orders"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/validation"
)

const orderLimitMessage = "Has superado el límite de pedidos permitidos por hora. Por favor, contacta a soporte."

// OrdersConfig groups dependencies for the order routes.
type OrdersConfig struct {
	Engine       *orders.Engine
	Updater      *orders.Updater
	Verifier     auth.Verifier
	OrderLimiter Limiter // optional
	Validator    *validatorv10.Validate
	Log          *zap.Logger
}

// RegisterOrdersRoutes registers the order creation and update routes.
func RegisterOrdersRoutes(r gin.IRouter, cfg OrdersConfig) {
	v := cfg.Validator
	if v == nil {
		v = validation.New()
	}
	log := cfg.Log

	create := []gin.HandlerFunc{}
	if cfg.OrderLimiter != nil {
		create = append(create, RateLimit(cfg.OrderLimiter, orderLimitMessage, log))
	}
	create = append(create, Authenticate(cfg.Verifier, log), func(c *gin.Context) {
		var req validation.CreateOrderRequest
		if err := validation.Bind(c, &req); err != nil {
			writeError(c, log, err)
			return
		}
		meta := orders.RequestMeta{IP: ClientIP(c.Request), UserAgent: c.Request.UserAgent()}
		res, err := cfg.Engine.Create(c.Request.Context(), req, meta)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
	r.POST("/orders/create", create...)

	r.POST("/orders/update",
		Authenticate(cfg.Verifier, log),
		RequireRoles(log, auth.RoleAdmin, auth.RoleStaff),
		func(c *gin.Context) {
			var req validation.UpdateOrderRequest
			if err := validation.Bind(c, &req); err != nil {
				writeError(c, log, err)
				return
			}
			if err := validation.Check(v, req, "Faltan campos obligatorios (id)"); err != nil {
				writeError(c, log, err)
				return
			}
			change := orders.Change{
				OrderID:       req.ID,
				Status:        req.Status,
				TransactionID: req.TransactionID,
				Notes:         req.Notes,
				Confirm:       req.ConfirmAction,
				DecisionType:  req.DecisionType,
				Reason:        req.Reason,
			}
			who := audit.Requester{IP: ClientIP(c.Request), UserAgent: c.Request.UserAgent()}
			res, err := cfg.Updater.Update(c.Request.Context(), identityFrom(c), change, who)
			if err != nil {
				writeError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, res)
		})
}
