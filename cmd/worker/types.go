package main

import (
	"context"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/orders"
)

// OrderReader loads a committed order.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}
