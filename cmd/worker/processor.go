package main

import (
	"context"
	"encoding/json"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/events"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/metrics"
)

// Processor consumes order events from SQS.
type Processor struct {
	orders  OrderReader
	metrics metrics.Recorder
	log     *zap.Logger
}

// NewProcessor creates a processor reading orders from reader.
func NewProcessor(reader OrderReader, rec metrics.Recorder, log *zap.Logger) *Processor {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Processor{orders: reader, metrics: rec, log: log}
}

// Handle processes an SQS batch. Any error fails the whole batch so Lambda
// redelivers it; repeated failures end in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) error {
	p.log.Debug("received sqs batch", zap.Int("records", len(ev.Records)))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var ev events.OrderEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	switch ev.Type {
	case events.TypeOrderCreated:
		return p.orderCreated(ctx, ev)
	default:
		p.log.Warn("skipping unknown event type", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID))
		return nil
	}
}

func (p *Processor) orderCreated(ctx context.Context, ev events.OrderEvent) error {
	if ev.OrderID == "" {
		return fmt.Errorf("order event without order id")
	}
	order, err := p.orders.Get(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", ev.OrderID)
	}

	dims := map[string]string{"PaymentMethod": order.PaymentMethod}
	p.metrics.Record(ctx, metrics.OrdersCreated, 1, dims)
	p.metrics.Record(ctx, metrics.OrderRevenue, order.Total, dims)

	p.log.Info("order event processed",
		zap.String("order_id", order.OrderID),
		zap.String("status", string(order.Status)),
		zap.Float64("total", order.Total))
	return nil
}
