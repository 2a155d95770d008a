package staleness

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/outreachd/internal/staleness"

// Engine persists step documents and propagates staleness across the
// dependency graph.
type Engine struct {
	store  *store.Store
	graph  Graph
	bus    *events.Bus
	logger *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	staleGauge  metric.Int64Counter
	saveCounter metric.Int64Counter
}

// NewEngine creates the staleness engine. A nil graph uses DefaultGraph.
func NewEngine(st *store.Store, graph Graph, bus *events.Bus, logger *zap.Logger) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if graph == nil {
		graph = DefaultGraph()
	}
	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependency graph: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:  st,
		graph:  graph,
		bus:    bus,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	e.initMetrics()
	return e, nil
}

func (e *Engine) initMetrics() {
	var err error

	e.saveCounter, err = e.meter.Int64Counter(
		"outreachd.steps.saves_total",
		metric.WithDescription("Total step documents saved, labeled by step key"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		e.logger.Warn("failed to create save counter", zap.Error(err))
	}

	e.staleGauge, err = e.meter.Int64Counter(
		"outreachd.steps.marked_stale_total",
		metric.WithDescription("Total step documents marked stale by dependency propagation"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		e.logger.Warn("failed to create stale counter", zap.Error(err))
	}
}

// Graph returns the engine's dependency graph.
func (e *Engine) Graph() Graph { return e.graph }

// SaveStep writes the generated data for (project, stepKey), clearing
// any staleness on that step document only. Other steps' staleness is
// untouched; call MarkDependentsStale separately on regeneration.
func (e *Engine) SaveStep(ctx context.Context, project, stepKey string, data store.Document) (*store.StepDocument, error) {
	ctx, span := e.tracer.Start(ctx, "staleness.save_step")
	defer span.End()

	span.SetAttributes(
		attribute.String("project", project),
		attribute.String("step_key", stepKey),
	)

	if _, ok := e.graph[stepKey]; !ok {
		err := fmt.Errorf("unknown step %q", stepKey)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := e.store.UpsertStepDocument(ctx, project, stepKey, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("saving step document: %w", err)
	}

	if e.saveCounter != nil {
		e.saveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("step_key", stepKey)))
	}
	e.logger.Info("step document saved",
		zap.String("project", project),
		zap.String("step_key", stepKey),
	)

	if e.bus != nil {
		_ = e.bus.Publish(ctx, events.Event{
			Type: events.TypeStepSaved,
			Data: store.Document{"project": project, "step_key": stepKey},
		})
	}
	return doc, nil
}

// MarkDependentsStale marks every transitive downstream consumer of
// changedStep that has an existing step document as stale, and returns
// the affected step keys in pipeline order.
//
// The operation is idempotent: the affected set depends only on the
// graph and on which step documents exist, not on prior staleness state
// or call order. It is not atomic with the step save that triggered it;
// the pipeline retries it until it succeeds before reporting the
// regeneration finished.
func (e *Engine) MarkDependentsStale(ctx context.Context, project, changedStep string) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "staleness.mark_dependents")
	defer span.End()

	span.SetAttributes(
		attribute.String("project", project),
		attribute.String("changed_step", changedStep),
	)

	if _, ok := e.graph[changedStep]; !ok {
		err := fmt.Errorf("unknown step %q", changedStep)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reason := fmt.Sprintf("Dependency '%s' was regenerated", changedStep)

	var affected []string
	for _, stepKey := range e.graph.Dependents(changedStep) {
		marked, err := e.store.MarkStepStale(ctx, project, stepKey, reason)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return affected, fmt.Errorf("marking %s stale: %w", stepKey, err)
		}
		if marked {
			affected = append(affected, stepKey)
		}
	}

	if e.staleGauge != nil {
		e.staleGauge.Add(ctx, int64(len(affected)), metric.WithAttributes(
			attribute.String("changed_step", changedStep),
		))
	}
	e.logger.Info("dependents marked stale",
		zap.String("project", project),
		zap.String("changed_step", changedStep),
		zap.Strings("affected", affected),
	)

	span.SetAttributes(attribute.Int("affected_count", len(affected)))
	return affected, nil
}
