package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fundly/internal/platform/metrics"
)

type namedSink struct {
	name string
	sink Sink
}

// FanOut delivers every event to all registered sinks. One failing sink does
// not stop delivery to the others.
type FanOut struct {
	sinks   []namedSink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*FanOut)

func WithLogger(logger *slog.Logger) Option {
	return func(f *FanOut) {
		f.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *FanOut) {
		f.metrics = m
	}
}

func NewFanOut(opts ...Option) *FanOut {
	f := &FanOut{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Add registers a sink under a name used in logs and metrics.
func (f *FanOut) Add(name string, sink Sink) *FanOut {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
	return f
}

func (f *FanOut) Len() int { return len(f.sinks) }

func (f *FanOut) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Notify(ctx, event); err != nil {
			f.metrics.IncrementNotificationFailure(s.name)
			if f.logger != nil {
				f.logger.WarnContext(ctx, "notification delivery failed",
					"sink", s.name,
					"type", string(event.Type),
					"error", err,
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
