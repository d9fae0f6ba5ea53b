// Package events hands order events to the background queue without blocking
// the request that produced them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TypeOrderCreated is emitted once per committed, non-duplicate order.
const TypeOrderCreated = "ORDER_CREATED"

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// ErrQueueFull is returned by Dispatch when the buffer has no room.
var ErrQueueFull = errors.New("dispatch queue full")

// OrderEvent is the message published for background processing.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	Total         float64   `json:"total"`
	ItemCount     int       `json:"item_count"`
	PaymentMethod string    `json:"payment_method"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publisher delivers one message to the queue.
type Publisher interface {
	Publish(ctx context.Context, body string, attributes map[string]string) error
}

// Options tunes the dispatcher.
type Options struct {
	Workers      int
	Buffer       int
	MaxAttempts  int
	RetryBackoff time.Duration
	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration
	// Inline publishes inside Dispatch instead of on background workers. Use
	// it where the process can be frozen once the response is sent (Lambda).
	Inline bool
}

// Dispatcher is a bounded queue drained by a fixed set of worker goroutines.
// Publish failures are retried with linear backoff and then logged; they are
// never reported back to the producer.
type Dispatcher struct {
	pub  Publisher
	opts Options
	log  *zap.Logger

	queue chan OrderEvent
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sleep func(time.Duration)
}

func NewDispatcher(pub Publisher, opts Options, log *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	return &Dispatcher{
		pub:   pub,
		opts:  opts,
		log:   log,
		queue: make(chan OrderEvent, opts.Buffer),
		sleep: time.Sleep,
	}
}

// Start launches the workers. It is a no-op for inline dispatchers.
func (d *Dispatcher) Start() {
	if d.opts.Inline {
		return
	}
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Dispatch enqueues ev without blocking. Inline dispatchers publish before
// returning; publish failures are still only logged.
func (d *Dispatcher) Dispatch(ev OrderEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if d.opts.Inline {
		d.deliver(ev)
		return nil
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for queued ones to drain or for ctx
// to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev OrderEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		d.log.Error("failed to encode order event", zap.String("order_id", ev.OrderID), zap.Error(err))
		return
	}
	attrs := map[string]string{"event_type": ev.Type, "order_id": ev.OrderID}

	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.PublishTimeout)
		err = d.pub.Publish(ctx, string(body), attrs)
		cancel()
		if err == nil {
			d.log.Debug("order event published", zap.String("order_id", ev.OrderID), zap.Int("attempt", attempt))
			return
		}
		d.log.Warn("order event publish failed",
			zap.String("order_id", ev.OrderID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < d.opts.MaxAttempts && d.opts.RetryBackoff > 0 {
			d.sleep(time.Duration(attempt) * d.opts.RetryBackoff)
		}
	}
	d.log.Error("order event dropped after retries",
		zap.String("order_id", ev.OrderID), zap.String("type", ev.Type), zap.Error(err))
}
