package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertContextUpdate appends one update row to the audit trail and
// returns its id. CreatedAt is stamped here when unset.
func (s *Store) InsertContextUpdate(ctx context.Context, u *ContextUpdate) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	rawPayload, err := marshalDoc(u.Payload)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO context_updates
			(client_id, capability, source, payload, confidence, requires_approval, approved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		u.ClientID, u.Capability, u.Source, rawPayload, u.Confidence,
		u.RequiresApproval, formatTime(u.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("%w: inserting context update: %w", ErrUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: reading update id: %w", ErrUnavailable, err)
	}
	u.ID = id
	return id, nil
}

// ApproveAndApply transitions the update with id from pending to approved
// and merges its payload into the client context, all inside one
// transaction, so a pending update is never left approved but unapplied.
// Returns the full row and the resulting context version. Returns
// ErrNotFound when the id does not exist, never required approval, or was
// already approved; on any error nothing is mutated and the update stays
// pending.
func (s *Store) ApproveAndApply(ctx context.Context, id int64, approvedBy string) (*ContextUpdate, int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, client_id, capability, source, payload, confidence,
		       requires_approval, approved, approved_by, approved_at, created_at
		FROM context_updates
		WHERE id = ? AND requires_approval = 1 AND approved = 0`, id)

	u, err := scanContextUpdate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("pending update %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying pending update: %w", ErrUnavailable, err)
	}

	approvedAt := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE context_updates SET approved = 1, approved_by = ?, approved_at = ? WHERE id = ?`,
		approvedBy, formatTime(approvedAt), id); err != nil {
		return nil, 0, fmt.Errorf("%w: marking update approved: %w", ErrUnavailable, err)
	}

	version, err := applyPayloadTx(ctx, tx, u.ClientID, u.Capability, u.Payload)
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("%w: committing approval: %w", ErrUnavailable, err)
	}

	u.Approved = true
	u.ApprovedBy = approvedBy
	u.ApprovedAt = &approvedAt
	return u, version, nil
}

// ListPendingUpdates returns updates awaiting approval ordered by
// confidence descending, then oldest first.
func (s *Store) ListPendingUpdates(ctx context.Context, limit int) ([]*ContextUpdate, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, capability, source, payload, confidence,
		       requires_approval, approved, approved_by, approved_at, created_at
		FROM context_updates
		WHERE requires_approval = 1 AND approved = 0
		ORDER BY confidence DESC, created_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: listing pending updates: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var updates []*ContextUpdate
	for rows.Next() {
		u, err := scanContextUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning pending update: %w", ErrUnavailable, err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating pending updates: %w", ErrUnavailable, err)
	}
	return updates, nil
}

// GetContextUpdate returns one update row by id.
func (s *Store) GetContextUpdate(ctx context.Context, id int64) (*ContextUpdate, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, capability, source, payload, confidence,
		       requires_approval, approved, approved_by, approved_at, created_at
		FROM context_updates WHERE id = ?`, id)

	u, err := scanContextUpdate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying update: %w", ErrUnavailable, err)
	}
	return u, nil
}

func scanContextUpdate(row scanner) (*ContextUpdate, error) {
	var (
		u          ContextUpdate
		rawPayload string
		approvedBy sql.NullString
		approvedAt sql.NullString
		created    string
	)
	if err := row.Scan(&u.ID, &u.ClientID, &u.Capability, &u.Source, &rawPayload,
		&u.Confidence, &u.RequiresApproval, &u.Approved, &approvedBy, &approvedAt, &created); err != nil {
		return nil, err
	}

	var err error
	if u.Payload, err = unmarshalDoc(rawPayload); err != nil {
		return nil, err
	}
	if approvedBy.Valid {
		u.ApprovedBy = approvedBy.String
	}
	if approvedAt.Valid {
		t := parseTime(approvedAt.String)
		u.ApprovedAt = &t
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}
