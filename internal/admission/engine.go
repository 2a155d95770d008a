package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/cache"
	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/outreachd/internal/admission"

// CapabilityGeneral is assigned to updates submitted without a capability.
const CapabilityGeneral = "general"

// Update is a proposed context change flowing through admission.
type Update struct {
	ID               int64
	ClientID         string
	Capability       string
	Source           Source
	Payload          store.Document
	Confidence       float64
	RequiresApproval bool
	Approved         bool
	ApprovedBy       string
	ApprovedAt       *time.Time
	CreatedAt        time.Time
}

// ValidationError describes a malformed update rejected before
// persistence.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid update: %s %s", e.Field, e.Reason)
}

// Engine is the update admission engine.
type Engine struct {
	store  *store.Store
	cache  cache.Cache
	bus    *events.Bus
	logger *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	submitCounter  metric.Int64Counter
	approveCounter metric.Int64Counter
}

// NewEngine creates the admission engine. The store is required; cache
// and bus may be nil-equivalent implementations.
func NewEngine(st *store.Store, ch cache.Cache, bus *events.Bus, logger *zap.Logger) (*Engine, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if ch == nil {
		ch = cache.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		store:  st,
		cache:  ch,
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

	e.submitCounter, err = e.meter.Int64Counter(
		"outreachd.admission.submits_total",
		metric.WithDescription("Total submitted context updates, labeled by source and outcome (applied, queued, rejected)"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		e.logger.Warn("failed to create submit counter", zap.Error(err))
	}

	e.approveCounter, err = e.meter.Int64Counter(
		"outreachd.admission.approvals_total",
		metric.WithDescription("Total approval attempts, labeled by outcome (applied, not_found)"),
		metric.WithUnit("{approval}"),
	)
	if err != nil {
		e.logger.Warn("failed to create approval counter", zap.Error(err))
	}
}

// validate rejects malformed updates before anything is persisted.
func (e *Engine) validate(u *Update) error {
	if u.ClientID == "" {
		return &ValidationError{Field: "client_id", Reason: "is required"}
	}
	if !u.Source.Valid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("%q is not a known source", u.Source.String())}
	}
	if u.Confidence < 0 || u.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v is outside [0,1]", u.Confidence)}
	}
	return nil
}

// SubmitUpdate persists the update to the audit trail and, when it does
// not require approval, applies it synchronously. Returns true iff the
// update was applied.
func (e *Engine) SubmitUpdate(ctx context.Context, u *Update) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "admission.submit_update")
	defer span.End()

	span.SetAttributes(
		attribute.String("client_id", u.ClientID),
		attribute.String("source", u.Source.String()),
		attribute.Bool("requires_approval", u.RequiresApproval),
	)

	if err := e.validate(u); err != nil {
		e.countSubmit(ctx, u.Source, "rejected")
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	if u.Capability == "" {
		u.Capability = CapabilityGeneral
	}

	// The audit row is written first, whatever the outcome.
	row := &store.ContextUpdate{
		ClientID:         u.ClientID,
		Capability:       u.Capability,
		Source:           u.Source.String(),
		Payload:          u.Payload,
		Confidence:       u.Confidence,
		RequiresApproval: u.RequiresApproval,
		CreatedAt:        u.CreatedAt,
	}
	id, err := e.store.InsertContextUpdate(ctx, row)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("persisting update: %w", err)
	}
	u.ID = id
	u.CreatedAt = row.CreatedAt

	if u.RequiresApproval {
		e.countSubmit(ctx, u.Source, "queued")
		e.logger.Info("update queued for approval",
			zap.Int64("update_id", id),
			zap.String("client_id", u.ClientID),
			zap.String("capability", u.Capability),
			zap.Float64("confidence", u.Confidence),
		)
		return false, nil
	}

	version, err := e.apply(ctx, u.ClientID, u.Capability, u.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	e.countSubmit(ctx, u.Source, "applied")
	e.logger.Info("update applied",
		zap.Int64("update_id", id),
		zap.String("client_id", u.ClientID),
		zap.String("capability", u.Capability),
		zap.Int("version", version),
	)
	return true, nil
}

// ApproveUpdate applies a pending update. Returns false with no side
// effects when the id does not exist or was already approved.
func (e *Engine) ApproveUpdate(ctx context.Context, updateID int64, approvedBy string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "admission.approve_update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("update_id", updateID),
		attribute.String("approved_by", approvedBy),
	)

	// Approval and application commit together; a failure here leaves
	// the update pending and retryable.
	row, version, err := e.store.ApproveAndApply(ctx, updateID, approvedBy)
	if errors.Is(err, store.ErrNotFound) {
		if e.approveCounter != nil {
			e.approveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "not_found")))
		}
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("approving update: %w", err)
	}

	e.invalidateAndPublish(ctx, row.ClientID, row.Capability, version)

	if e.approveCounter != nil {
		e.approveCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "applied")))
	}
	e.logger.Info("pending update approved and applied",
		zap.Int64("update_id", updateID),
		zap.String("approved_by", approvedBy),
		zap.String("client_id", row.ClientID),
		zap.String("capability", row.Capability),
		zap.Int("version", version),
	)
	return true, nil
}

// ListPendingApprovals returns updates awaiting approval, highest
// confidence first, oldest first within equal confidence.
func (e *Engine) ListPendingApprovals(ctx context.Context, limit int) ([]*Update, error) {
	ctx, span := e.tracer.Start(ctx, "admission.list_pending")
	defer span.End()

	rows, err := e.store.ListPendingUpdates(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	updates := make([]*Update, 0, len(rows))
	for _, row := range rows {
		u, err := fromStoreUpdate(row)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	span.SetAttributes(attribute.Int("result_count", len(updates)))
	return updates, nil
}

// apply runs the shared merge path: merge+version in the store, then
// cache invalidation and the context.updated event.
func (e *Engine) apply(ctx context.Context, clientID, capability string, payload store.Document) (int, error) {
	version, err := e.store.ApplyContextPayload(ctx, clientID, capability, payload)
	if err != nil {
		return 0, fmt.Errorf("applying update: %w", err)
	}

	e.invalidateAndPublish(ctx, clientID, capability, version)
	return version, nil
}

// invalidateAndPublish runs after a committed merge. The cache entry is
// deleted rather than rewritten; the next read recomposes from the store.
func (e *Engine) invalidateAndPublish(ctx context.Context, clientID, capability string, version int) {
	if err := e.cache.Delete(ctx, cache.ContextKey(clientID, capability)); err != nil {
		e.logger.Warn("cache invalidation failed",
			zap.String("client_id", clientID),
			zap.String("capability", capability),
			zap.Error(err),
		)
	}

	if e.bus != nil {
		_ = e.bus.Publish(ctx, events.Event{
			Type:       events.TypeContextUpdated,
			ClientID:   clientID,
			Capability: capability,
			Data:       store.Document{"version": version},
		})
	}
}

func (e *Engine) countSubmit(ctx context.Context, source Source, outcome string) {
	if e.submitCounter == nil {
		return
	}
	e.submitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source.String()),
		attribute.String("outcome", outcome),
	))
}

func fromStoreUpdate(row *store.ContextUpdate) (*Update, error) {
	source, err := ParseSource(row.Source)
	if err != nil {
		return nil, fmt.Errorf("update %d: %w", row.ID, err)
	}
	return &Update{
		ID:               row.ID,
		ClientID:         row.ClientID,
		Capability:       row.Capability,
		Source:           source,
		Payload:          row.Payload,
		Confidence:       row.Confidence,
		RequiresApproval: row.RequiresApproval,
		Approved:         row.Approved,
		ApprovedBy:       row.ApprovedBy,
		ApprovedAt:       row.ApprovedAt,
		CreatedAt:        row.CreatedAt,
	}, nil
}
