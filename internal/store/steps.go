package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertStepDocument writes the generated data for (project, stepKey) and
// clears any staleness on that row only.
func (s *Store) UpsertStepDocument(ctx context.Context, project, stepKey string, data Document) (*StepDocument, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rawData, err := marshalDoc(data)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_documents (project, step_key, data, stale, stale_reason, generated_at, updated_at)
		VALUES (?, ?, ?, 0, NULL, ?, ?)
		ON CONFLICT(project, step_key) DO UPDATE SET
			data = excluded.data,
			stale = 0,
			stale_reason = NULL,
			generated_at = excluded.generated_at,
			updated_at = excluded.updated_at`,
		project, stepKey, rawData, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("%w: upserting step document: %w", ErrUnavailable, err)
	}

	return s.GetStepDocument(ctx, project, stepKey)
}

// GetStepDocument returns the step document for (project, stepKey), or
// ErrNotFound when the step has never been generated.
func (s *Store) GetStepDocument(ctx context.Context, project, stepKey string) (*StepDocument, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, project, step_key, data, stale, stale_reason, generated_at, updated_at
		FROM step_documents WHERE project = ? AND step_key = ?`,
		project, stepKey)

	doc, err := scanStepDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step %s/%s: %w", project, stepKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying step document: %w", ErrUnavailable, err)
	}
	return doc, nil
}

// MarkStepStale sets the stale flag and reason on (project, stepKey).
// Returns false when no step document exists; steps that were never
// generated have nothing to invalidate.
func (s *Store) MarkStepStale(ctx context.Context, project, stepKey, reason string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE step_documents SET stale = 1, stale_reason = ?, updated_at = ?
		WHERE project = ? AND step_key = ?`,
		reason, formatTime(time.Now()), project, stepKey)
	if err != nil {
		return false, fmt.Errorf("%w: marking step stale: %w", ErrUnavailable, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: reading affected rows: %w", ErrUnavailable, err)
	}
	return affected > 0, nil
}

// ListStepDocuments returns all step documents for a project.
func (s *Store) ListStepDocuments(ctx context.Context, project string) ([]*StepDocument, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, step_key, data, stale, stale_reason, generated_at, updated_at
		FROM step_documents WHERE project = ? ORDER BY step_key`, project)
	if err != nil {
		return nil, fmt.Errorf("%w: listing step documents: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var docs []*StepDocument
	for rows.Next() {
		doc, err := scanStepDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning step document: %w", ErrUnavailable, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating step documents: %w", ErrUnavailable, err)
	}
	return docs, nil
}

func scanStepDocument(row scanner) (*StepDocument, error) {
	var (
		doc                StepDocument
		rawData            string
		staleReason        sql.NullString
		generated, updated string
	)
	if err := row.Scan(&doc.ID, &doc.Project, &doc.StepKey, &rawData, &doc.Stale,
		&staleReason, &generated, &updated); err != nil {
		return nil, err
	}

	var err error
	if doc.Data, err = unmarshalDoc(rawData); err != nil {
		return nil, err
	}
	if staleReason.Valid {
		doc.StaleReason = staleReason.String
	}
	doc.GeneratedAt = parseTime(generated)
	doc.UpdatedAt = parseTime(updated)
	return &doc, nil
}
