package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fundly/internal/platform/metrics"
)

const (
	DefaultQueueSize       = 256
	DefaultDeliveryTimeout = 5 * time.Second
)

// ErrQueueFull is returned when an event is dropped because the dispatcher
// is saturated.
var ErrQueueFull = errors.New("notification queue full")

// ErrDispatcherClosed is returned for events submitted after Close.
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

type DispatcherConfig struct {
	QueueSize int
	// Timeout bounds a single delivery to the wrapped sink.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type queued struct {
	ctx   context.Context
	event Event
}

// Dispatcher hands events to a sink on a background worker. Notify never
// waits on the sink; each delivery runs detached from the caller's context
// under its own timeout.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue chan queued
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDeliveryTimeout
	}
	d := &Dispatcher{
		sink:    sink,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		queue:   make(chan queued, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues the event and returns at once.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		d.metrics.IncrementNotificationFailure("queue")
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for item := range d.queue {
		d.deliver(item)
	}
}

func (d *Dispatcher) deliver(item queued) {
	ctx, cancel := context.WithTimeout(item.ctx, d.timeout)
	defer cancel()
	if err := d.sink.Notify(ctx, item.event); err != nil && d.logger != nil {
		d.logger.WarnContext(ctx, "notification dispatch failed",
			"type", string(item.event.Type),
			"key", item.event.Key(),
			"error", err,
		)
	}
}

// Close stops accepting events and waits for the queued ones to be
// delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
