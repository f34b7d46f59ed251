// Package dispatcher delivers committed flow, voucher and period events to
// in-process subscribers such as the approver notifier.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// Dispatcher routes committed events to subscribers
type Dispatcher interface {
	port.EventPublisher

	// Subscribe registers a named handler for one or more event types
	Subscribe(name string, handler Handler, types ...event.Type)

	// Stats reports delivery counters since start
	Stats() Stats

	// Close stops accepting events and waits for in-flight handlers
	Close() error
}

// Stats are the dispatcher's delivery counters
type Stats struct {
	Subscriptions int
	Delivered     uint64
	Failed        uint64
	Dropped       uint64
	InFlight      int64
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]subscription
	logger   Logger
	timeout  time.Duration

	wg        sync.WaitGroup
	closed    atomic.Bool
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	inFlight  atomic.Int64
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds each handler run. Zero means no bound.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]subscription),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *eventDispatcher) Subscribe(name string, handler Handler, types ...event.Type) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range types {
		d.handlers[t] = append(d.handlers[t], subscription{name: name, handler: handler})
	}

	if d.logger != nil {
		d.logger.Info("Handler subscribed", "handler_name", name, "event_types", types)
	}
}

// Publish delivers each event to its subscribers asynchronously. Handlers
// get a context detached from the caller's cancellation.
func (d *eventDispatcher) Publish(ctx context.Context, events ...*event.Event) {
	detached := context.WithoutCancel(ctx)

	for _, evt := range events {
		if evt == nil {
			continue
		}

		d.mu.RLock()
		subs := d.handlers[evt.Type]
		if d.closed.Load() {
			d.mu.RUnlock()
			d.dropped.Add(uint64(len(subs)))
			if d.logger != nil {
				d.logger.Error("Dispatcher closed, event dropped",
					"event_type", evt.Type,
					"event_id", evt.ID,
				)
			}
			continue
		}
		d.wg.Add(len(subs))
		d.inFlight.Add(int64(len(subs)))
		d.mu.RUnlock()

		for _, sub := range subs {
			go func(sub subscription, evt *event.Event) {
				defer d.wg.Done()
				defer d.inFlight.Add(-1)
				d.deliver(detached, evt, sub)
			}(sub, evt)
		}
	}
}

func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event, sub subscription) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.safeExecute(ctx, evt, sub); err != nil {
		d.failed.Add(1)
		if d.logger != nil {
			d.logger.Error("Event handler failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", sub.name,
				"error", err,
			)
		}
		return
	}
	d.delivered.Add(1)
}

func (d *eventDispatcher) Stats() Stats {
	d.mu.RLock()
	subscriptions := 0
	for _, subs := range d.handlers {
		subscriptions += len(subs)
	}
	d.mu.RUnlock()

	return Stats{
		Subscriptions: subscriptions,
		Delivered:     d.delivered.Load(),
		Failed:        d.failed.Load(),
		Dropped:       d.dropped.Load(),
		InFlight:      d.inFlight.Load(),
	}
}

// Close marks the dispatcher closed under the write lock, so no Publish
// can add work after Wait starts.
func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.mu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for handlers", "in_flight", d.inFlight.Load())
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed",
			"delivered", d.delivered.Load(),
			"failed", d.failed.Load(),
		)
	}

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, sub subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return sub.handler(ctx, evt)
}
