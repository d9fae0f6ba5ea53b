package orders

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/lifecycle"
)

func TestAggregateStock(t *testing.T) {
	lines := aggregateStock([]Item{
		{ProductID: "a", Name: "Lomo"},
		{ProductID: "b", Name: "Costilla"},
		{ProductID: "a", Name: "Lomo"},
	})
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if lines[0].productID != "a" || lines[0].units != 2 {
		t.Fatalf("unexpected first line %+v", lines[0])
	}
	if lines[1].productID != "b" || lines[1].units != 1 {
		t.Fatalf("unexpected second line %+v", lines[1])
	}
}

func TestCreateOrder_SoldOutNamesProduct(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("lomo", 0)

	err := h.store.CreateOrder(context.Background(), Order{
		OrderID: "o1",
		Items:   []Item{{ProductID: "lomo", Name: "Lomo fino"}},
		Status:  lifecycle.WaitingPayment,
	}, nil)
	ae, ok := apperr.As(err)
	if !ok || ae.Code != apperr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(ae.Message, "Lomo fino se ha agotado") {
		t.Fatalf("unexpected message %q", ae.Message)
	}
	if h.fake.Count(tblOrders) != 0 {
		t.Fatalf("order must not be written")
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	err := h.store.CreateOrder(context.Background(), Order{
		OrderID: "o1",
		Items:   []Item{{ProductID: "ghost", Name: "Chorizo"}},
	}, nil)
	ae, ok := apperr.As(err)
	if !ok || !strings.Contains(ae.Message, "Chorizo no encontrado") {
		t.Fatalf("expected not-found validation error, got %v", err)
	}
}

func TestCreateOrder_ClaimLost(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedProduct("lomo", 5)

	claim, err := h.idem.ClaimItem("k1", "o1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	order := Order{OrderID: "o1", Items: []Item{{ProductID: "lomo", Name: "Lomo"}}}
	if err := h.store.CreateOrder(context.Background(), order, &claim); err != nil {
		t.Fatalf("first create: %v", err)
	}

	again, err := h.idem.ClaimItem("k1", "o2")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	order.OrderID = "o2"
	if err := h.store.CreateOrder(context.Background(), order, &again); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if got := h.stock("lomo"); got != 4 {
		t.Fatalf("losing transaction must not touch stock, got %d", got)
	}
}

func TestSavePendingAction_StaleVersion(t *testing.T) {
	h := newHarness(t, lifecycle.TerminalPolicy{})
	h.seedOrder(Order{OrderID: "o1", Status: lifecycle.WaitingPayment, Version: 3})

	stale := Order{OrderID: "o1", Status: lifecycle.WaitingPayment, Version: 2}
	err := h.store.SavePendingAction(context.Background(), stale)
	if apperr.StatusOf(err) != 409 {
		t.Fatalf("expected conflict, got %v", err)
	}

	fresh := *h.order("o1")
	if err := h.store.SavePendingAction(context.Background(), fresh); err != nil {
		t.Fatalf("save with current version: %v", err)
	}
	if got := h.order("o1").Version; got != 4 {
		t.Fatalf("expected version 4, got %d", got)
	}
}
