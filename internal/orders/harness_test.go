package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/audit"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/blacklist"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/events"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/governance"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/testutil"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/validation"
)

const (
	tblOrders    = "orders"
	tblProducts  = "products"
	tblDecisions = "manual_decisions"
	tblIdem      = "idempotency"
	tblSettings  = "system_settings"
	tblBlacklist = "blacklist"
	tblAudit     = "audit_logs"
)

type captureDispatcher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (c *captureDispatcher) Dispatch(ev events.OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type harness struct {
	t          *testing.T
	fake       *testutil.FakeDynamo
	store      *Store
	idem       *idempotency.Store
	settings   *governance.Store
	dispatcher *captureDispatcher
	engine     *Engine
	updater    *Updater
	now        time.Time
}

func newHarness(t *testing.T, policy lifecycle.TerminalPolicy) *harness {
	t.Helper()
	fake := testutil.NewFakeDynamo(map[string]string{
		tblOrders:    "order_id",
		tblProducts:  "product_id",
		tblDecisions: "decision_id",
		tblIdem:      "idempotency_key",
		tblSettings:  "setting_id",
		tblBlacklist: "ip",
		tblAudit:     "audit_id",
	})
	h := &harness{
		t:          t,
		fake:       fake,
		dispatcher: &captureDispatcher{},
		now:        time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	h.store = NewStore(fake, Tables{Orders: tblOrders, Products: tblProducts, ManualDecisions: tblDecisions})
	h.store.nowFunc = clock
	h.idem = idempotency.NewStore(fake, tblIdem, 48*time.Hour)
	h.settings = governance.NewStore(fake, tblSettings)
	// zero ttl: every check reads the settings table
	gate := governance.NewGate(h.settings, 0, zap.NewNop())

	h.engine = NewEngine(EngineDeps{
		Store:       h.store,
		Idempotency: h.idem,
		Blocker:     blacklist.NewBlocker(fake, tblBlacklist, nil, zap.NewNop()),
		Dispatcher:  h.dispatcher,
		Log:         zap.NewNop(),
	})
	h.engine.nowFunc = clock

	h.updater = NewUpdater(h.store, gate, audit.NewStore(fake, tblAudit), policy, zap.NewNop())
	h.updater.nowFunc = clock
	return h
}

func (h *harness) seedProduct(id string, stock int64) {
	h.t.Helper()
	item, err := attributevalue.MarshalMap(Product{ProductID: id, Name: id, Stock: stock, UpdatedAt: h.now})
	if err != nil {
		h.t.Fatalf("marshal product: %v", err)
	}
	h.fake.Seed(tblProducts, item)
}

func (h *harness) stock(id string) int64 {
	h.t.Helper()
	item := h.fake.Item(tblProducts, id)
	if item == nil {
		h.t.Fatalf("product %s not found", id)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		h.t.Fatalf("unmarshal product %s: %v", id, err)
	}
	return p.Stock
}

func (h *harness) seedOrder(o Order) {
	h.t.Helper()
	if o.Version == 0 {
		o.Version = 1
	}
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		h.t.Fatalf("marshal order: %v", err)
	}
	h.fake.Seed(tblOrders, item)
}

func (h *harness) order(id string) *Order {
	h.t.Helper()
	o, err := h.store.Get(context.Background(), id)
	if err != nil || o == nil {
		h.t.Fatalf("get order %s: %v", id, err)
	}
	return o
}

func (h *harness) setMode(m governance.Mode) {
	h.t.Helper()
	if err := h.settings.Put(context.Background(), governance.Settings{Mode: m, UpdatedAt: h.now, UpdatedBy: "ops"}); err != nil {
		h.t.Fatalf("set mode: %v", err)
	}
}

func (h *harness) decisions() []ManualDecision {
	h.t.Helper()
	var out []ManualDecision
	for _, item := range h.fake.Items(tblDecisions) {
		var d ManualDecision
		if err := attributevalue.UnmarshalMap(item, &d); err != nil {
			h.t.Fatalf("unmarshal decision: %v", err)
		}
		out = append(out, d)
	}
	return out
}

func orderRequest(productIDs ...string) validation.CreateOrderRequest {
	items := make([]validation.Item, 0, len(productIDs))
	for _, id := range productIDs {
		items = append(items, validation.Item{ID: id, Name: "Corte " + id, SelectedWeight: 1, FinalPrice: 50000, PricePerKg: 50000})
	}
	return validation.CreateOrderRequest{
		CustomerInfo: validation.CustomerInfo{
			CustomerName:    "Juan Pérez",
			CustomerPhone:   "3001234567",
			CustomerAddress: "Carrera 45 # 12-34 Casa 2",
			City:            "Bogotá",
		},
		Items:         items,
		PaymentMethod: "efectivo",
	}
}

var meta = RequestMeta{IP: "198.51.100.7", UserAgent: "Mozilla/5.0"}

func validationlessBot() validation.CreateOrderRequest {
	return validation.CreateOrderRequest{BusinessFax: "x"}
}
