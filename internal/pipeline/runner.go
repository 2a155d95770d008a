// Package pipeline drives one generation step end to end: fetch enriched
// context, call the generation engine, persist the step document,
// propagate staleness on regeneration, and submit extracted insights to
// admission.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/admission"
	"github.com/fyrsmithlabs/outreachd/internal/contextstore"
	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/staleness"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/outreachd/internal/pipeline"

// ErrStalenessIncomplete reports that the step document was durably saved
// but marking its dependents stale did not complete. The caller should
// retry the marking step, not regenerate.
var ErrStalenessIncomplete = errors.New("step saved but staleness propagation incomplete")

// Generator is the external text-generation collaborator. Given the
// enriched context for a step it returns the structured step payload.
type Generator interface {
	Generate(ctx context.Context, stepKey string, contextDoc store.Document) (store.Document, error)
}

// Insight is a context update candidate extracted from generated output.
type Insight struct {
	Payload          store.Document `json:"payload"`
	Confidence       float64        `json:"confidence"`
	RequiresApproval bool           `json:"requires_approval"`
}

// Config configures the pipeline runner.
type Config struct {
	// MarkRetries is how many times staleness marking is retried after
	// the step save before giving up (default: 3).
	MarkRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{MarkRetries: 3}
}

// Result reports one completed step run.
type Result struct {
	RunID         string
	Project       string
	StepKey       string
	Document      *store.StepDocument
	MarkedStale   []string
	InsightsSaved int
}

// Runner orchestrates step generation.
type Runner struct {
	config    *Config
	contexts  *contextstore.Service
	steps     *staleness.Engine
	admission *admission.Engine
	generator Generator
	bus       *events.Bus
	logger    *zap.Logger

	tracer trace.Tracer
}

// NewRunner creates a pipeline runner. All collaborators except bus are
// required.
func NewRunner(cfg *Config, contexts *contextstore.Service, steps *staleness.Engine, adm *admission.Engine, gen Generator, bus *events.Bus, logger *zap.Logger) (*Runner, error) {
	if contexts == nil {
		return nil, errors.New("context store is required")
	}
	if steps == nil {
		return nil, errors.New("staleness engine is required")
	}
	if adm == nil {
		return nil, errors.New("admission engine is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MarkRetries <= 0 {
		cfg.MarkRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		config:    cfg,
		contexts:  contexts,
		steps:     steps,
		admission: adm,
		generator: gen,
		bus:       bus,
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// RunStep generates one pipeline step for a project. The step key doubles
// as the capability whose context feeds the generation. When force is
// true the step is being regenerated and downstream consumers are marked
// stale; first-time generation skips the marking.
//
// The generated output is saved before staleness propagation starts, so a
// marking failure is returned as ErrStalenessIncomplete with the saved
// document attached: retry the marking, not the generation.
func (r *Runner) RunStep(ctx context.Context, project, clientID, stepKey string, force bool) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.run_step")
	defer span.End()

	result := &Result{
		RunID:   uuid.New().String(),
		Project: project,
		StepKey: stepKey,
	}
	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.String("project", project),
		attribute.String("step_key", stepKey),
		attribute.Bool("force", force),
	)

	contextDoc, err := r.contexts.GetContext(ctx, clientID, stepKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetching context: %w", err)
	}

	output, err := r.generator.Generate(ctx, stepKey, contextDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating step %s: %w", stepKey, err)
	}

	doc, err := r.steps.SaveStep(ctx, project, stepKey, output)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Document = doc

	if force {
		affected, err := r.markWithRetry(ctx, project, stepKey)
		result.MarkedStale = affected
		if err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("%w: %w", ErrStalenessIncomplete, err)
		}
	}

	result.InsightsSaved = r.submitInsights(ctx, clientID, stepKey, output)

	if r.bus != nil {
		_ = r.bus.Publish(ctx, events.Event{
			Type:       events.TypeDocumentsProcessed,
			ClientID:   clientID,
			Capability: stepKey,
			Data: store.Document{
				"run_id":  result.RunID,
				"project": project,
			},
		})
	}

	r.logger.Info("pipeline step finished",
		zap.String("run_id", result.RunID),
		zap.String("project", project),
		zap.String("step_key", stepKey),
		zap.Bool("force", force),
		zap.Strings("marked_stale", result.MarkedStale),
		zap.Int("insights_saved", result.InsightsSaved),
	)
	return result, nil
}

// markWithRetry retries staleness propagation. Marking is idempotent, so
// a retry after partial success re-marks already-marked steps harmlessly.
func (r *Runner) markWithRetry(ctx context.Context, project, stepKey string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < r.config.MarkRetries; attempt++ {
		affected, err := r.steps.MarkDependentsStale(ctx, project, stepKey)
		if err == nil {
			return affected, nil
		}
		lastErr = err
		r.logger.Warn("staleness marking failed",
			zap.String("project", project),
			zap.String("step_key", stepKey),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// submitInsights extracts insight candidates from the generated output
// and submits them to admission. Extraction failures never fail the run;
// the step document is already durable.
func (r *Runner) submitInsights(ctx context.Context, clientID, stepKey string, output store.Document) int {
	saved := 0
	for _, insight := range ExtractInsights(output) {
		_, err := r.admission.SubmitUpdate(ctx, &admission.Update{
			ClientID:         clientID,
			Capability:       stepKey,
			Source:           admission.SourceGenerationInsight,
			Payload:          insight.Payload,
			Confidence:       insight.Confidence,
			RequiresApproval: insight.RequiresApproval,
		})
		if err != nil {
			r.logger.Warn("insight submission failed",
				zap.String("client_id", clientID),
				zap.String("capability", stepKey),
				zap.Error(err),
			)
			continue
		}
		saved++
	}
	return saved
}

// ExtractInsights pulls insight candidates from a generated document.
// Generators attach them under the "insights" key as a list of objects
// with payload, confidence, and requires_approval fields.
func ExtractInsights(output store.Document) []Insight {
	raw, ok := output["insights"].([]any)
	if !ok {
		return nil
	}

	insights := make([]Insight, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		payload, ok := entry["payload"].(map[string]any)
		if !ok || len(payload) == 0 {
			continue
		}
		insight := Insight{Payload: payload}
		if c, ok := entry["confidence"].(float64); ok {
			insight.Confidence = c
		}
		if ra, ok := entry["requires_approval"].(bool); ok {
			insight.RequiresApproval = ra
		}
		insights = append(insights, insight)
	}
	return insights
}
