// Package contextstore is the public-facing façade over the cache layer,
// document store, and cross-population enrichment. It answers "what
// context should capability X see for client Y".
package contextstore

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

	"github.com/fyrsmithlabs/outreachd/internal/cache"
	"github.com/fyrsmithlabs/outreachd/internal/segments"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

const instrumentationName = "github.com/fyrsmithlabs/outreachd/internal/contextstore"

// Reserved keys attached to composed context documents.
const (
	// KeyPatterns holds the enrichment pattern list.
	KeyPatterns = "cross_population_insights"

	// KeyPerformance holds the latest performance metrics.
	KeyPerformance = "performance_metrics"
)

// Config bounds the enrichment join.
type Config struct {
	// PatternLimit caps patterns attached per context (default: 10).
	PatternLimit int

	// MinSuccessRate filters patterns below this success rate (default: 0.7).
	MinSuccessRate float64

	// MinConfidence filters patterns below this confidence (default: 0.8).
	MinConfidence float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PatternLimit:   10,
		MinSuccessRate: 0.7,
		MinConfidence:  0.8,
	}
}

// Service composes cache, store, and enrichment behind GetContext.
type Service struct {
	config   *Config
	store    *store.Store
	cache    cache.Cache
	segments segments.Resolver
	logger   *zap.Logger

	tracer      trace.Tracer
	meter       metric.Meter
	hitCounter  metric.Int64Counter
	missCounter metric.Int64Counter
}

// NewService creates the context store façade. The store is required;
// cache defaults to Noop and segments may be nil to disable enrichment.
func NewService(cfg *Config, st *store.Store, ch cache.Cache, seg segments.Resolver, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if ch == nil {
		ch = cache.NewNoop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		config:   cfg,
		store:    st,
		cache:    ch,
		segments: seg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *Service) initMetrics() {
	var err error

	s.hitCounter, err = s.meter.Int64Counter(
		"outreachd.context.cache_hits_total",
		metric.WithDescription("Context reads served from cache"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		s.logger.Warn("failed to create hit counter", zap.Error(err))
	}

	s.missCounter, err = s.meter.Int64Counter(
		"outreachd.context.cache_misses_total",
		metric.WithDescription("Context reads composed from the document store"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		s.logger.Warn("failed to create miss counter", zap.Error(err))
	}
}

// GetContext returns the enriched context document for (clientID,
// capability).
//
// The composition is read-only with respect to the document store (the
// cache warm-up is the only write) and idempotent: absence of a context
// document is not an error, it yields a minimal document holding only
// the identity keys. Cache errors are logged and never surfaced.
func (s *Service) GetContext(ctx context.Context, clientID, capability string) (store.Document, error) {
	ctx, span := s.tracer.Start(ctx, "contextstore.get_context")
	defer span.End()

	span.SetAttributes(
		attribute.String("client_id", clientID),
		attribute.String("capability", capability),
	)

	key := cache.ContextKey(clientID, capability)

	if cached, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if s.hitCounter != nil {
			s.hitCounter.Add(ctx, 1)
		}
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}
	if s.missCounter != nil {
		s.missCounter.Add(ctx, 1)
	}

	composed, err := s.compose(ctx, clientID, capability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.cache.Set(ctx, key, composed); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return composed, nil
}

// compose builds the enriched document from the store.
func (s *Service) compose(ctx context.Context, clientID, capability string) (store.Document, error) {
	doc := store.Document{
		"client_id":  clientID,
		"capability": capability,
	}

	stored, err := s.store.GetContextDocument(ctx, clientID, capability)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First read for this pair: a minimal document, no enrichment keys.
		return doc, nil
	case err != nil:
		return nil, fmt.Errorf("reading context document: %w", err)
	}

	for k, v := range stored.Document {
		doc[k] = v
	}
	doc["client_id"] = clientID
	doc["capability"] = capability
	doc["version"] = stored.Version

	if patterns := s.enrich(ctx, clientID); len(patterns) > 0 {
		doc[KeyPatterns] = patterns
	}

	metrics, err := s.store.LatestPerformanceMetrics(ctx, clientID, capability)
	if err != nil {
		// Partial enrichment failure: the base context is still served.
		s.logger.Warn("performance metric lookup failed",
			zap.String("client_id", clientID),
			zap.String("capability", capability),
			zap.Error(err),
		)
	} else if len(metrics) > 0 {
		doc[KeyPerformance] = metrics
	}

	return doc, nil
}

// enrich joins cross-population patterns for the client's segment. Any
// failure here (unresolved segment, pattern query error) skips enrichment
// silently; it never fails the read.
func (s *Service) enrich(ctx context.Context, clientID string) []*store.CrossPopulationPattern {
	if s.segments == nil {
		return nil
	}

	seg, err := s.segments.Resolve(ctx, clientID)
	if err != nil {
		if !errors.Is(err, segments.ErrUnresolved) {
			s.logger.Warn("segment resolution failed", zap.String("client_id", clientID), zap.Error(err))
		}
		return nil
	}

	patterns, err := s.store.QueryPatterns(ctx, store.PatternQuery{
		Industry:      seg.Industry,
		CompanySize:   seg.CompanySize,
		MinSuccess:    s.config.MinSuccessRate,
		MinConfidence: s.config.MinConfidence,
		Limit:         s.config.PatternLimit,
	})
	if err != nil {
		s.logger.Warn("pattern query failed", zap.String("client_id", clientID), zap.Error(err))
		return nil
	}
	return patterns
}

// RecordMetric appends one performance observation attributed to the
// context version active right now (0 when the pair has no document).
func (s *Service) RecordMetric(ctx context.Context, clientID, capability, metricName string, value float64) error {
	ctx, span := s.tracer.Start(ctx, "contextstore.record_metric")
	defer span.End()

	span.SetAttributes(
		attribute.String("client_id", clientID),
		attribute.String("capability", capability),
		attribute.String("metric_name", metricName),
	)

	version, err := s.store.GetContextVersion(ctx, clientID, capability)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("resolving context version: %w", err)
	}

	if err := s.store.InsertPerformanceMetric(ctx, &store.PerformanceMetric{
		ClientID:       clientID,
		Capability:     capability,
		ContextVersion: version,
		MetricName:     metricName,
		MetricValue:    value,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
