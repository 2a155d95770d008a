package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GetContextDocument returns the context document for (clientID,
// capability), or ErrNotFound when no update has ever been applied.
func (s *Store) GetContextDocument(ctx context.Context, clientID, capability string) (*ContextDocument, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, capability, document, performance_metrics,
		       version, created_at, updated_at
		FROM client_contexts
		WHERE client_id = ? AND capability = ?`,
		clientID, capability)

	doc, err := scanContextDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context for %s/%s: %w", clientID, capability, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying context: %w", ErrUnavailable, err)
	}
	return doc, nil
}

// GetContextVersion returns the current version for (clientID,
// capability), or 0 when no context document exists yet.
func (s *Store) GetContextVersion(ctx context.Context, clientID, capability string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM client_contexts WHERE client_id = ? AND capability = ?`,
		clientID, capability).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: querying context version: %w", ErrUnavailable, err)
	}
	return version, nil
}

// ApplyContextPayload merges payload into the stored context document for
// (clientID, capability) and returns the resulting version.
//
// The merge is shallow: top-level keys in payload overwrite stored keys,
// unspecified keys are preserved. The first applied payload creates the
// row at version 1; every later apply increments version by exactly 1.
// The read-merge-write sequence runs inside one transaction on the single
// writer connection, so concurrent applies serialize and never collide on
// a version number.
func (s *Store) ApplyContextPayload(ctx context.Context, clientID, capability string, payload Document) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	version, err := applyPayloadTx(ctx, tx, clientID, capability, payload)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing context apply: %w", ErrUnavailable, err)
	}

	s.logger.Debug("applied context payload",
		zap.String("client_id", clientID),
		zap.String("capability", capability),
		zap.Int("version", version),
	)

	return version, nil
}

// applyPayloadTx is the shared merge step: read, shallow-merge, write,
// increment version, all inside the caller's transaction.
func applyPayloadTx(ctx context.Context, tx *sql.Tx, clientID, capability string, payload Document) (int, error) {
	now := formatTime(time.Now())

	var (
		id      int64
		rawDoc  string
		version int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, document, version FROM client_contexts WHERE client_id = ? AND capability = ?`,
		clientID, capability).Scan(&id, &rawDoc, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		raw, merr := marshalDoc(payload)
		if merr != nil {
			return 0, merr
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO client_contexts (client_id, capability, document, version, created_at, updated_at)
			VALUES (?, ?, ?, 1, ?, ?)`,
			clientID, capability, raw, now, now)
		if err != nil {
			return 0, fmt.Errorf("%w: inserting context: %w", ErrUnavailable, err)
		}
		version = 1

	case err != nil:
		return 0, fmt.Errorf("%w: reading context for merge: %w", ErrUnavailable, err)

	default:
		stored, uerr := unmarshalDoc(rawDoc)
		if uerr != nil {
			return 0, uerr
		}
		merged := mergeShallow(stored, payload)
		raw, merr := marshalDoc(merged)
		if merr != nil {
			return 0, merr
		}
		version++
		_, err = tx.ExecContext(ctx, `
			UPDATE client_contexts SET document = ?, version = ?, updated_at = ? WHERE id = ?`,
			raw, version, now, id)
		if err != nil {
			return 0, fmt.Errorf("%w: updating context: %w", ErrUnavailable, err)
		}
	}

	return version, nil
}

// mergeShallow overlays update onto base at the top key level only.
func mergeShallow(base, update Document) Document {
	merged := make(Document, len(base)+len(update))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanContextDocument(row scanner) (*ContextDocument, error) {
	var (
		doc              ContextDocument
		rawDoc, rawPerf  string
		created, updated string
	)
	if err := row.Scan(&doc.ID, &doc.ClientID, &doc.Capability, &rawDoc, &rawPerf,
		&doc.Version, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if doc.Document, err = unmarshalDoc(rawDoc); err != nil {
		return nil, err
	}
	doc.PerformanceMetrics = map[string]float64{}
	if rawPerf != "" {
		if err := json.Unmarshal([]byte(rawPerf), &doc.PerformanceMetrics); err != nil {
			return nil, fmt.Errorf("unmarshaling performance metrics: %w", err)
		}
	}
	doc.CreatedAt = parseTime(created)
	doc.UpdatedAt = parseTime(updated)
	return &doc, nil
}
