package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/events"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/metrics"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/validation"
)

const (
	fakeOrderPrefix     = "fake_ord_"
	honeypotReason      = "Honeypot Triggered (business_fax)"
	heavyItemWeightKg   = 3.0
	heavyCycleDays      = 7
	standardCycleDays   = 15
	defaultOrderSource  = "direct"
	invalidOrderMessage = "Datos de pedido inválidos."
)

// IdempotencyStore looks up and claims idempotency keys.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	ClaimItem(key, orderID string) (types.TransactWriteItem, error)
}

// Blocker permanently blocks a client address.
type Blocker interface {
	Block(ctx context.Context, ip, userAgent, reason string) error
}

// Dispatcher queues an event for background delivery without blocking.
type Dispatcher interface {
	Dispatch(ev events.OrderEvent) error
}

// RequestMeta carries the request attributes persisted with an order.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// CreateResult is the response of a creation attempt. Honeypot responses share
// this shape.
type CreateResult struct {
	OK        bool   `json:"ok"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// EngineDeps wires an Engine.
type EngineDeps struct {
	Store         *Store
	Idempotency   IdempotencyStore
	Blocker       Blocker
	Dispatcher    Dispatcher
	Metrics       metrics.Recorder
	Validator     *validatorv10.Validate
	Log           *zap.Logger
	PaymentWindow time.Duration
}

// Engine creates orders.
type Engine struct {
	store         *Store
	idem          IdempotencyStore
	blocker       Blocker
	dispatcher    Dispatcher
	metrics       metrics.Recorder
	validate      *validatorv10.Validate
	log           *zap.Logger
	paymentWindow time.Duration
	nowFunc       func() time.Time
	newID         func() string
}

func NewEngine(d EngineDeps) *Engine {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.PaymentWindow <= 0 {
		d.PaymentWindow = time.Hour
	}
	return &Engine{
		store:         d.Store,
		idem:          d.Idempotency,
		blocker:       d.Blocker,
		dispatcher:    d.Dispatcher,
		metrics:       d.Metrics,
		validate:      d.Validator,
		log:           d.Log,
		paymentWindow: d.PaymentWindow,
		nowFunc:       time.Now,
		newID:         uuid.NewString,
	}
}

// Create validates req and commits the order together with its stock
// decrements and idempotency claim. The caller must already have applied rate
// limiting and authentication.
func (e *Engine) Create(ctx context.Context, req validation.CreateOrderRequest, meta RequestMeta) (CreateResult, error) {
	log := e.log.With(zap.String("ip", meta.IP))

	if req.BusinessFax != "" {
		return e.trap(ctx, meta, log), nil
	}

	if err := validation.Check(e.validate, req, invalidOrderMessage); err != nil {
		return CreateResult{}, err
	}
	validation.Sanitize(&req)

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		rec, err := e.idem.Get(ctx, key)
		if err != nil {
			return CreateResult{}, err
		}
		if rec != nil {
			return e.duplicate(ctx, key, rec.OrderID, log), nil
		}
	}

	order := e.buildOrder(req, key, meta)

	var claim *types.TransactWriteItem
	if key != "" {
		item, err := e.idem.ClaimItem(key, order.OrderID)
		if err != nil {
			return CreateResult{}, err
		}
		claim = &item
	}

	if err := e.store.CreateOrder(ctx, order, claim); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// a concurrent retry with the same key committed first
			rec, gerr := e.idem.Get(ctx, key)
			if gerr != nil {
				return CreateResult{}, gerr
			}
			if rec != nil {
				return e.duplicate(ctx, key, rec.OrderID, log), nil
			}
		}
		return CreateResult{}, err
	}

	ev := events.OrderEvent{
		Type:          events.TypeOrderCreated,
		OrderID:       order.OrderID,
		Total:         order.Total,
		ItemCount:     len(order.Items),
		PaymentMethod: order.PaymentMethod,
		Source:        order.Source,
		CreatedAt:     order.CreatedAt,
	}
	if err := e.dispatcher.Dispatch(ev); err != nil {
		log.Error("failed to queue order event", zap.String("order_id", order.OrderID), zap.Error(err))
	}

	log.Info("order created", zap.String("order_id", order.OrderID), zap.Float64("total", order.Total))
	return CreateResult{OK: true, ID: order.OrderID}, nil
}

// trap blocks the caller and answers with a success-shaped fake. Errors are
// logged only so the response never differs from a genuine success.
func (e *Engine) trap(ctx context.Context, meta RequestMeta, log *zap.Logger) CreateResult {
	log.Warn("honeypot triggered: bot detected (business_fax)", zap.String("user_agent", meta.UserAgent))
	if err := e.blocker.Block(ctx, meta.IP, meta.UserAgent, honeypotReason); err != nil {
		log.Error("failed to persist honeypot block", zap.Error(err))
	}
	e.metrics.Record(ctx, metrics.HoneypotTriggered, 1, nil)
	return CreateResult{OK: true, ID: fakeOrderPrefix + strings.ReplaceAll(e.newID(), "-", "")[:8]}
}

func (e *Engine) duplicate(ctx context.Context, key, orderID string, log *zap.Logger) CreateResult {
	log.Warn("duplicate order attempt detected", zap.String("idempotency_key", key), zap.String("order_id", orderID))
	e.metrics.Record(ctx, metrics.DuplicateOrders, 1, nil)
	return CreateResult{OK: true, ID: orderID, Duplicate: true}
}

func (e *Engine) buildOrder(req validation.CreateOrderRequest, key string, meta RequestMeta) Order {
	now := e.nowFunc().UTC()

	total := decimal.Zero
	cycle := standardCycleDays
	items := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		total = total.Add(decimal.NewFromFloat(it.FinalPrice))
		if it.SelectedWeight >= heavyItemWeightKg {
			cycle = heavyCycleDays
		}
		items = append(items, Item{
			ProductID:      it.ID,
			Name:           it.Name,
			PricePerKg:     it.PricePerKg,
			SelectedWeight: it.SelectedWeight,
			FinalPrice:     it.FinalPrice,
			Category:       it.Category,
			ImageURL:       it.ImageURL,
		})
	}
	totalValue, _ := total.Round(2).Float64()

	source := req.Source
	if source == "" {
		source = defaultOrderSource
	}
	ci := req.CustomerInfo
	return Order{
		OrderID: e.newID(),
		CustomerInfo: CustomerInfo{
			Name:         ci.CustomerName,
			Phone:        ci.CustomerPhone,
			Address:      ci.CustomerAddress,
			Neighborhood: ci.Neighborhood,
			City:         ci.City,
			Notes:        ci.Notes,
			DeliveryDate: ci.DeliveryDate,
			DeliveryTime: ci.DeliveryTime,
		},
		Items:              items,
		Total:              totalValue,
		PaymentMethod:      req.PaymentMethod,
		Status:             lifecycle.WaitingPayment,
		IdempotencyKey:     key,
		EstimatedCycleDays: cycle,
		Source:             source,
		CustomerIP:         meta.IP,
		UserAgent:          meta.UserAgent,
		CreatedAt:          now,
		ExpiresAt:          now.Add(e.paymentWindow),
	}
}
