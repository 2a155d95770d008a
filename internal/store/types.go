package store

import "time"

// Document is the semi-structured payload shape shared by context
// documents, updates, patterns, and step documents.
type Document = map[string]any

// ContextDocument is the authoritative context state for one
// (client_id, capability) pair.
type ContextDocument struct {
	ID                 int64              `json:"id"`
	ClientID           string             `json:"client_id"`
	Capability         string             `json:"capability"`
	Document           Document           `json:"document"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics"`

	// Version starts at 1 on first applied update and increments by
	// exactly 1 on every subsequent applied update.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContextUpdate is one proposed change to a context document. Rows are
// append-only; only the approval fields mutate after insert.
type ContextUpdate struct {
	ID               int64      `json:"id"`
	ClientID         string     `json:"client_id"`
	Capability       string     `json:"capability"`
	Source           string     `json:"source"`
	Payload          Document   `json:"payload"`
	Confidence       float64    `json:"confidence"`
	RequiresApproval bool       `json:"requires_approval"`
	Approved         bool       `json:"approved"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// CrossPopulationPattern is an anonymized aggregate written by the
// pattern aggregation job and read during context enrichment.
type CrossPopulationPattern struct {
	ID              int64     `json:"id"`
	PatternType     string    `json:"pattern_type"`
	Industry        string    `json:"industry"`
	CompanySize     string    `json:"company_size"`
	PatternData     Document  `json:"pattern_data"`
	SuccessRate     float64   `json:"success_rate"`
	SampleSize      int       `json:"sample_size"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// PerformanceMetric is one append-only effectiveness observation tied to
// the context version that was active when it was recorded.
type PerformanceMetric struct {
	ID             int64     `json:"id"`
	ClientID       string    `json:"client_id"`
	Capability     string    `json:"capability"`
	ContextVersion int       `json:"context_version"`
	MetricName     string    `json:"metric_name"`
	MetricValue    float64   `json:"metric_value"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// StepDocument is the persisted output of one pipeline step for one
// project, with its staleness marker.
type StepDocument struct {
	ID          int64     `json:"id"`
	Project     string    `json:"project"`
	StepKey     string    `json:"step_key"`
	Data        Document  `json:"data"`
	Stale       bool      `json:"stale"`
	StaleReason string    `json:"stale_reason,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
