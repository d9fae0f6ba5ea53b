package orders

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
)

func TestCreate_PersistsServerComputedOrder(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("picanha", 10)
	h.seedProduct("costilla", 10)

	req := orderRequest("picanha", "costilla")
	req.Items[0].FinalPrice = 60000.10
	req.Items[1].FinalPrice = 90000.20
	req.Items[1].SelectedWeight = 3
	req.Total = 1 // ignored
	req.CustomerInfo.Notes = `<img src=x onerror="alert(1)">`

	res, err := h.engine.Create(context.Background(), req, meta)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.OK || res.ID == "" || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}

	o := h.order(res.ID)
	if o.Total != 150000.30 {
		t.Fatalf("expected server total 150000.30, got %v", o.Total)
	}
	if o.Status != lifecycle.WaitingPayment {
		t.Fatalf("expected WAITING_PAYMENT, got %s", o.Status)
	}
	if o.EstimatedCycleDays != 7 {
		t.Fatalf("a 3kg item should give a 7 day cycle, got %d", o.EstimatedCycleDays)
	}
	if !o.ExpiresAt.Equal(h.now.Add(time.Hour)) {
		t.Fatalf("expected 1h payment window, got %v", o.ExpiresAt)
	}
	if o.CustomerIP != meta.IP || o.Source != "direct" || o.Version != 1 {
		t.Fatalf("unexpected request metadata %+v", o)
	}
	if strings.Contains(o.CustomerInfo.Notes, "<") {
		t.Fatalf("notes must be escaped before persistence: %q", o.CustomerInfo.Notes)
	}
	if h.stock("picanha") != 9 || h.stock("costilla") != 9 {
		t.Fatalf("each line decrements one unit")
	}
	if h.dispatcher.count() != 1 || h.dispatcher.events[0].OrderID != res.ID {
		t.Fatalf("expected one ORDER_CREATED event")
	}
}

func TestCreate_LightItemsUseStandardCycle(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("chorizo", 5)
	res, err := h.engine.Create(context.Background(), orderRequest("chorizo"), meta)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d := h.order(res.ID).EstimatedCycleDays; d != 15 {
		t.Fatalf("expected 15 days, got %d", d)
	}
}

func TestCreate_ConcurrentRequestsForLastUnit(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("tomahawk", 1)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.Create(context.Background(), orderRequest("tomahawk"), meta)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		ae, isApp := apperr.As(err)
		if !isApp || ae.Status != http.StatusBadRequest || !strings.Contains(ae.Message, "agotado") {
			t.Fatalf("expected sold-out validation error, got %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful order, got %d", ok)
	}
	if h.stock("tomahawk") != 0 {
		t.Fatalf("stock must end at 0, got %d", h.stock("tomahawk"))
	}
	if h.fake.Count(tblOrders) != 1 {
		t.Fatalf("expected one order, got %d", h.fake.Count(tblOrders))
	}
}

func TestCreate_DuplicateLinesNeedEnoughStock(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("lomo", 1)
	_, err := h.engine.Create(context.Background(), orderRequest("lomo", "lomo"), meta)
	if apperr.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("two lines of one product need two units, got %v", err)
	}
	if h.stock("lomo") != 1 {
		t.Fatalf("no partial decrement may persist")
	}
}

func TestCreate_UnknownProductAbortsEverything(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("picanha", 3)

	_, err := h.engine.Create(context.Background(), orderRequest("picanha", "ghost"), meta)
	ae, ok := apperr.As(err)
	if !ok || ae.Message != "Producto Corte ghost no encontrado en inventario." {
		t.Fatalf("expected not-found validation error, got %v", err)
	}
	if h.stock("picanha") != 3 || h.fake.Count(tblOrders) != 0 {
		t.Fatalf("failed transaction must not persist anything")
	}
	if h.dispatcher.count() != 0 {
		t.Fatalf("no event for failed orders")
	}
}

func TestCreate_IdempotentRetry(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("picanha", 10)
	req := orderRequest("picanha")
	req.IdempotencyKey = "checkout-42"

	first, err := h.engine.Create(context.Background(), req, meta)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := h.engine.Create(context.Background(), req, meta)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !second.Duplicate || second.ID != first.ID || !second.OK {
		t.Fatalf("expected duplicate of %s, got %+v", first.ID, second)
	}
	if h.stock("picanha") != 9 {
		t.Fatalf("retry must not touch stock, got %d", h.stock("picanha"))
	}
	if h.fake.TransactCalls != 1 || h.fake.Count(tblOrders) != 1 {
		t.Fatalf("retry must not write, transacts=%d orders=%d", h.fake.TransactCalls, h.fake.Count(tblOrders))
	}
	if h.dispatcher.count() != 1 {
		t.Fatalf("duplicates are not dispatched")
	}
}

// staleIdem misses the first lookup, as a request racing a concurrent commit would.
type staleIdem struct {
	*idempotency.Store
	misses int
}

func (s *staleIdem) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	if s.misses > 0 {
		s.misses--
		return nil, nil
	}
	return s.Store.Get(ctx, key)
}

func TestCreate_ConcurrentRetryLosesClaim(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("picanha", 10)
	req := orderRequest("picanha")
	req.IdempotencyKey = "checkout-7"

	first, err := h.engine.Create(context.Background(), req, meta)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	h.engine.idem = &staleIdem{Store: h.idem, misses: 1}
	second, err := h.engine.Create(context.Background(), req, meta)
	if err != nil {
		t.Fatalf("racing retry: %v", err)
	}
	if !second.Duplicate || second.ID != first.ID {
		t.Fatalf("expected duplicate from cancelled claim, got %+v", second)
	}
	if h.stock("picanha") != 9 || h.fake.Count(tblOrders) != 1 {
		t.Fatalf("cancelled transaction must not write")
	}
}

func TestCreate_HoneypotFakesSuccessAndBlocks(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("picanha", 10)
	req := orderRequest("picanha")
	req.BusinessFax = "555-0100"

	res, err := h.engine.Create(context.Background(), req, meta)
	if err != nil {
		t.Fatalf("honeypot must look like success: %v", err)
	}
	if !res.OK || !strings.HasPrefix(res.ID, "fake_ord_") || len(res.ID) != len("fake_ord_")+8 {
		t.Fatalf("unexpected fake response %+v", res)
	}
	if h.fake.Count(tblBlacklist) != 1 || h.fake.Item(tblBlacklist, meta.IP) == nil {
		t.Fatalf("expected exactly one blacklist record for %s", meta.IP)
	}
	if h.fake.Count(tblOrders) != 0 || h.stock("picanha") != 10 || h.fake.TransactCalls != 0 {
		t.Fatalf("honeypot must not touch orders or inventory")
	}
	if h.dispatcher.count() != 0 {
		t.Fatalf("honeypot must not dispatch events")
	}
}

func TestCreate_HoneypotSkipsValidation(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	res, err := h.engine.Create(context.Background(), validationlessBot(), meta)
	if err != nil || !strings.HasPrefix(res.ID, "fake_ord_") {
		t.Fatalf("bots with junk payloads still get a fake success, got %+v %v", res, err)
	}
}

func TestCreate_HoneypotCatchesWhitespace(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("picanha", 10)
	req := orderRequest("picanha")
	req.BusinessFax = "   "

	res, err := h.engine.Create(context.Background(), req, meta)
	if err != nil || !strings.HasPrefix(res.ID, "fake_ord_") {
		t.Fatalf("any value in the hidden field is a bot, got %+v %v", res, err)
	}
	if h.fake.Count(tblOrders) != 0 || h.fake.Count(tblBlacklist) != 1 {
		t.Fatalf("expected a block and no order")
	}
}

func TestCreate_InvalidPayload(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	req := orderRequest()
	_, err := h.engine.Create(context.Background(), req, meta)
	if apperr.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("empty item list must be rejected, got %v", err)
	}
	if h.fake.TransactCalls != 0 {
		t.Fatalf("validation failures must not reach the store")
	}
}
