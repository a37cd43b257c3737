package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/paywatch/internal/core/domain"
)

// Handler types, one per event category. Registered closures are invoked
// sequentially in registration order.
type (
	PaymentHandler func(ctx context.Context, p domain.PaymentInfo) error
	ErrorHandler   func(ctx context.Context, ev domain.Event) error
	StatusHandler  func(ctx context.Context, state domain.MonitorState) error
)

// Dispatcher delivers typed events to registered handlers. Delivery is
// at-most-once per event instance. A failing handler never prevents the
// remaining handlers or the monitor's own control flow from proceeding: the
// failure is logged and surfaced to error handlers as a recoverable
// ErrorEvent instead of propagating into the orchestrator.
type Dispatcher struct {
	mu      sync.RWMutex
	payment []PaymentHandler
	errs    []ErrorHandler
	status  []StatusHandler
	log     *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log}
}

// OnPayment registers a payment handler.
func (d *Dispatcher) OnPayment(h PaymentHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payment = append(d.payment, h)
}

// OnError registers an error handler.
func (d *Dispatcher) OnError(h ErrorHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, h)
}

// OnStatus registers a status handler.
func (d *Dispatcher) OnStatus(h StatusHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = append(d.status, h)
}

// Dispatch routes an event to the handlers of its category.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Event) {
	switch ev.Type {
	case domain.EventTypePayment:
		d.mu.RLock()
		handlers := d.payment
		d.mu.RUnlock()
		for _, h := range handlers {
			if err := d.invokePayment(ctx, h, *ev.Payment); err != nil {
				d.handlerFailed(ctx, err)
			}
		}
	case domain.EventTypeError:
		d.dispatchError(ctx, ev)
	case domain.EventTypeStatus:
		d.mu.RLock()
		handlers := d.status
		d.mu.RUnlock()
		for _, h := range handlers {
			if err := d.invokeStatus(ctx, h, ev.State); err != nil {
				d.handlerFailed(ctx, err)
			}
		}
	}
}

// handlerFailed isolates a handler failure: log it, then inform error
// handlers. Failures raised by error handlers themselves are only logged to
// avoid recursion.
func (d *Dispatcher) handlerFailed(ctx context.Context, err error) {
	wrapped := fmt.Errorf("event handler failed: %w", err)
	d.log.Warn("Event handler failed", "error", err)
	d.dispatchError(ctx, domain.ErrorEvent(wrapped, true))
}

func (d *Dispatcher) dispatchError(ctx context.Context, ev domain.Event) {
	d.mu.RLock()
	handlers := d.errs
	d.mu.RUnlock()
	for _, h := range handlers {
		if err := d.invokeError(ctx, h, ev); err != nil {
			d.log.Warn("Error handler failed", "error", err)
		}
	}
}

func (d *Dispatcher) invokePayment(ctx context.Context, h PaymentHandler, p domain.PaymentInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, p)
}

func (d *Dispatcher) invokeError(ctx context.Context, h ErrorHandler, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

func (d *Dispatcher) invokeStatus(ctx context.Context, h StatusHandler, state domain.MonitorState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, state)
}
