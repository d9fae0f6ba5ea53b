package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/audit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/auth"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/blacklist"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/config"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/events"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/governance"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/handlers"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/metrics"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/orders"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/ratelimit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/validation"
)

type app struct {
	router *gin.Engine
}

// newApp wires every store, service and route. cleanup drains the event
// dispatcher and closes the Redis pool.
func newApp(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*app, func(), error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	clients, err := aws.NewAWSClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		return nil, nil, fmt.Errorf("init aws clients: %w", err)
	}

	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, zl)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		zl.Warn("redis not configured: rate limiting and blacklist cache disabled")
	}

	dispatcher := events.NewDispatcher(aws.NewPublisher(clients.SQS, cfg.Queue.OrderEventsURL), events.Options{
		Workers:      cfg.Events.Workers,
		Buffer:       cfg.Events.Buffer,
		MaxAttempts:  cfg.Events.MaxAttempts,
		RetryBackoff: cfg.Events.RetryBackoff,
		// Lambda freezes the process after each response; queued events
		// would wait for the next invocation or be lost on recycle.
		Inline:         !cfg.Server.RunLocal,
		PublishTimeout: cfg.Events.PublishTimeout,
	}, zl)
	dispatcher.Start()

	orderStore := orders.NewStore(clients.DynamoDB, orders.Tables{
		Orders:          cfg.Tables.Orders,
		Products:        cfg.Tables.Products,
		ManualDecisions: cfg.Tables.ManualDecisions,
	})
	settingsStore := governance.NewStore(clients.DynamoDB, cfg.Tables.SystemSettings)
	gate := governance.NewGate(settingsStore, cfg.Governance.CacheTTL, zl)
	auditLog := audit.NewStore(clients.DynamoDB, cfg.Tables.AuditLogs)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	validate := validation.New()

	// A nil *redis.Client wrapped in redis.Cmdable is a non-nil interface and
	// would slip past the Blocker's nil check, so pass an untyped nil instead.
	var blocker *blacklist.Blocker
	if rdb != nil {
		blocker = blacklist.NewBlocker(clients.DynamoDB, cfg.Tables.Blacklist, rdb, zl)
	} else {
		blocker = blacklist.NewBlocker(clients.DynamoDB, cfg.Tables.Blacklist, nil, zl)
	}

	engine := orders.NewEngine(orders.EngineDeps{
		Store:         orderStore,
		Idempotency:   idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Orders.IdempotencyTTL),
		Blocker:       blocker,
		Dispatcher:    dispatcher,
		Metrics:       rec,
		Validator:     validate,
		Log:           zl,
		PaymentWindow: cfg.Orders.PaymentWindow,
	})
	updater := orders.NewUpdater(orderStore, gate, auditLog,
		lifecycle.TerminalPolicy{AllowPostDeliveryReturn: cfg.Orders.AllowPostDeliveryReturn}, zl)

	rc := handlers.RouterConfig{
		Orders: handlers.OrdersConfig{
			Engine:    engine,
			Updater:   updater,
			Verifier:  verifier,
			Validator: validate,
			Log:       zl,
		},
		System: handlers.SystemConfig{
			Governance: governance.NewService(settingsStore, gate, auditLog, zl),
			Verifier:   verifier,
			Log:        zl,
		},
		Log: zl,
	}
	if rdb != nil {
		rc.Blacklist = blocker
		rc.EdgeLimiter = ratelimit.New(rdb, "edge", cfg.RateLimit.EdgeLimit, cfg.RateLimit.EdgeWindow, zl, rec)
		rc.Orders.OrderLimiter = ratelimit.New(rdb, "orders", cfg.RateLimit.OrdersLimit, cfg.RateLimit.OrdersWindow, zl, rec)
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dispatcher.Close(ctx); err != nil {
			zl.Warn("event dispatcher did not drain", zap.Error(err))
		}
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return &app{router: handlers.NewRouter(rc)}, cleanup, nil
}
