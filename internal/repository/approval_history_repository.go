package repository

import (
	"context"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
)

// ApprovalHistoryRepository appends and reads write-once history entries.
type ApprovalHistoryRepository struct {
	db *database.DB
}

// NewApprovalHistoryRepository creates a new ApprovalHistoryRepository.
func NewApprovalHistoryRepository(db *database.DB) *ApprovalHistoryRepository {
	return &ApprovalHistoryRepository{db: db}
}

// Append inserts one history entry. There is no update or delete.
func (r *ApprovalHistoryRepository) Append(ctx context.Context, entry *ApprovalHistoryEntry) error {
	query := `
		INSERT INTO approval_history
		    (approval_request_id, action, actor_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text
	`

	err := r.db.QueryRow(ctx, query,
		entry.ApprovalRequestID,
		string(entry.Action),
		entry.ActorID,
		entry.Comment,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append approval history")
	}
	return nil
}

// ListByRequest returns a request's history ordered oldest-first.
func (r *ApprovalHistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]*ApprovalHistoryEntry, error) {
	query := `
		SELECT id::text, approval_request_id, action, actor_id, comment, created_at
		FROM approval_history
		WHERE approval_request_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval history")
	}
	defer rows.Close()

	entries := []*ApprovalHistoryEntry{}
	for rows.Next() {
		e := &ApprovalHistoryEntry{}
		var action string
		if err := rows.Scan(
			&e.ID,
			&e.ApprovalRequestID,
			&action,
			&e.ActorID,
			&e.Comment,
			&e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval history")
		}
		e.Action = HistoryAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approval history")
	}
	return entries, nil
}
