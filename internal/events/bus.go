// Package events implements the fire-and-forget notification bus.
//
// Subscribers are invoked as independent tasks per event: the publisher
// waits for all of them to finish but treats each handler failure (or
// panic) as isolated. Delivery is at-most-once; there is no transaction
// spanning the bus and the operation that triggered the event.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/outreachd/internal/events"

// Well-known event types published by outreachd services.
const (
	TypeContextUpdated     = "context.updated"
	TypeStepSaved          = "step.saved"
	TypeDocumentsProcessed = "documents.processed"
)

// TypeAll subscribes a handler to every event regardless of type.
const TypeAll = "*"

// Event is one notification delivered to subscribers.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ClientID   string         `json:"client_id,omitempty"`
	Capability string         `json:"capability,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Handler processes one event. Errors are collected and logged by the
// bus; they never propagate to the publisher or to other handlers.
type Handler func(ctx context.Context, ev Event) error

// Bus dispatches events to registered handlers.
type Bus struct {
	logger *zap.Logger

	meter          metric.Meter
	publishCounter metric.Int64Counter
	failureCounter metric.Int64Counter

	mu   sync.RWMutex
	subs map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bus{
		logger: logger,
		meter:  otel.Meter(instrumentationName),
		subs:   make(map[string][]Handler),
	}
	b.initMetrics()
	return b
}

func (b *Bus) initMetrics() {
	var err error

	b.publishCounter, err = b.meter.Int64Counter(
		"outreachd.events.published_total",
		metric.WithDescription("Total events published, labeled by event type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		b.logger.Warn("failed to create publish counter", zap.Error(err))
	}

	b.failureCounter, err = b.meter.Int64Counter(
		"outreachd.events.handler_failures_total",
		metric.WithDescription("Total subscriber handler failures, labeled by event type"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		b.logger.Warn("failed to create failure counter", zap.Error(err))
	}
}

// Subscribe registers handler for eventType. Use TypeAll to receive every
// event. Subscription order is preserved but delivery is concurrent.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], handler)
}

// Publish delivers ev to all handlers subscribed to its type (plus
// TypeAll subscribers) and waits for them to finish. Handler failures are
// logged and counted but never returned; Publish only errors on an empty
// event type.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type])+len(b.subs[TypeAll]))
	handlers = append(handlers, b.subs[ev.Type]...)
	handlers = append(handlers, b.subs[TypeAll]...)
	b.mu.RUnlock()

	if b.publishCounter != nil {
		b.publishCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", ev.Type),
		))
	}

	if len(handlers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))

	for i, handler := range handlers {
		wg.Add(1)
		go func(i int, handler Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("handler panicked: %v", r)
				}
			}()
			errs[i] = handler(ctx, ev)
		}(i, handler)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if b.failureCounter != nil {
			b.failureCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("event_type", ev.Type),
			))
		}
		b.logger.Warn("event handler failed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.Int("handler_index", i),
			zap.Error(err),
		)
	}

	return nil
}
