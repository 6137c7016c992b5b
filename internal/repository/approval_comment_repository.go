package repository

import (
	"context"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
)

// ApprovalCommentRepository stores free-text comments such as rejection reasons.
type ApprovalCommentRepository struct {
	db *database.DB
}

// NewApprovalCommentRepository creates a new ApprovalCommentRepository.
func NewApprovalCommentRepository(db *database.DB) *ApprovalCommentRepository {
	return &ApprovalCommentRepository{db: db}
}

// Create inserts a comment.
func (r *ApprovalCommentRepository) Create(ctx context.Context, c *ApprovalComment) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO approval_comments
		    (approval_request_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`,
		c.ApprovalRequestID,
		c.AuthorID,
		c.Body,
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval comment")
	}
	return nil
}

// ListByRequest returns a request's comments oldest-first.
func (r *ApprovalCommentRepository) ListByRequest(ctx context.Context, requestID string) ([]*ApprovalComment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, approval_request_id, author_id, body, created_at
		FROM approval_comments
		WHERE approval_request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval comments")
	}
	defer rows.Close()

	comments := []*ApprovalComment{}
	for rows.Next() {
		c := &ApprovalComment{}
		if err := rows.Scan(&c.ID, &c.ApprovalRequestID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval comment")
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approval comments")
	}
	return comments, nil
}
