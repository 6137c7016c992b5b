package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
)

// ApprovalRequestRepository manages approval requests and their level
// decisions. A request and its decisions are always written together, so
// Create and Update must run inside a transaction.
type ApprovalRequestRepository struct {
	db *database.DB
}

// NewApprovalRequestRepository creates a new ApprovalRequestRepository.
func NewApprovalRequestRepository(db *database.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

const requestColumns = `
	r.id, r.entity_type, r.entity_id, r.entity_description, r.submitted_by_id,
	r.current_level, r.total_levels, r.status,
	r.submitted_at, r.completed_at, r.version
`

// Create inserts a request and all of its level decisions.
func (r *ApprovalRequestRepository) Create(ctx context.Context, req *ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests
		    (entity_type, entity_id, entity_description, submitted_by_id,
		     current_level, total_levels, status, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8, $9)
		RETURNING id, version
	`

	err := r.db.QueryRow(ctx, query,
		string(req.EntityType),
		req.EntityID,
		req.EntityDescription,
		req.SubmittedByID,
		req.CurrentLevel,
		req.TotalLevels,
		string(req.Status),
		req.SubmittedAt,
		req.CompletedAt,
	).Scan(&req.ID, &req.Version)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
	}

	decisionQuery := `
		INSERT INTO approval_level_decisions
		    (request_id, level_order, level_name, expected_approver_id,
		     decision, decided_by_id, decided_at)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING id
	`

	for _, d := range req.Decisions {
		d.RequestID = req.ID
		err := r.db.QueryRow(ctx, decisionQuery,
			d.RequestID,
			d.LevelOrder,
			d.LevelName,
			d.ExpectedApproverID,
			string(d.Decision),
			d.DecidedByID,
			d.DecidedAt,
		).Scan(&d.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create level decision")
		}
	}
	return nil
}

// GetByID retrieves a request with its decisions ordered by level.
func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	return r.get(ctx, id, false)
}

// GetByIDForUpdate retrieves a request and locks its row until the enclosing
// transaction ends. Concurrent transitions on the same request serialize here.
func (r *ApprovalRequestRepository) GetByIDForUpdate(ctx context.Context, id string) (*ApprovalRequest, error) {
	return r.get(ctx, id, true)
}

func (r *ApprovalRequestRepository) get(ctx context.Context, id string, lock bool) (*ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM approval_requests r
		WHERE r.id = $1
	`
	if lock {
		query += ` FOR UPDATE`
	}

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, lookupError(err, "approval request", id, "failed to get approval request")
	}
	if err := r.attachDecisions(ctx, []*ApprovalRequest{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// Update persists status, current level and every decision of req. The
// version column guards against writes based on a stale read.
func (r *ApprovalRequestRepository) Update(ctx context.Context, req *ApprovalRequest) error {
	query := `
		UPDATE approval_requests
		SET current_level = $3,
		    status        = $4,
		    completed_at  = $5,
		    version       = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	err := r.db.QueryRow(ctx, query,
		req.ID,
		req.Version,
		req.CurrentLevel,
		string(req.Status),
		req.CompletedAt,
	).Scan(&req.Version)
	if err == pgx.ErrNoRows {
		return errors.Business("approval request %s was modified concurrently", req.ID)
	}
	if err != nil {
		return writeError(err, "failed to update approval request")
	}

	decisionQuery := `
		UPDATE approval_level_decisions
		SET decision      = $3,
		    decided_by_id = $4,
		    decided_at    = $5
		WHERE request_id = $1 AND level_order = $2
	`
	for _, d := range req.Decisions {
		if _, err := r.db.Exec(ctx, decisionQuery,
			req.ID,
			d.LevelOrder,
			string(d.Decision),
			d.DecidedByID,
			d.DecidedAt,
		); err != nil {
			return writeError(err, "failed to update level decision")
		}
	}
	return nil
}

// Exists reports whether a request with the given id exists.
func (r *ApprovalRequestRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM approval_requests WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		if pgCode(err) == pgInvalidTextRepr {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check approval request")
	}
	return exists, nil
}

// ListPendingForUser returns PENDING requests whose current-level decision
// expects userID, newest first.
func (r *ApprovalRequestRepository) ListPendingForUser(ctx context.Context, userID string, page Page) (*PageResult, error) {
	query := `SELECT ` + requestColumns + `, COUNT(*) OVER () AS total
		FROM approval_requests r
		JOIN approval_level_decisions d
		  ON d.request_id = r.id AND d.level_order = r.current_level
		WHERE r.status = 'PENDING'
		  AND d.expected_approver_id = $1
		ORDER BY r.submitted_at DESC, r.id
		LIMIT $2 OFFSET $3
	`

	countQuery := `
		SELECT COUNT(*)
		FROM approval_requests r
		JOIN approval_level_decisions d
		  ON d.request_id = r.id AND d.level_order = r.current_level
		WHERE r.status = 'PENDING'
		  AND d.expected_approver_id = $1
	`

	return r.page(ctx, page, query, countQuery, []any{userID}, userID, page.Size, page.Offset())
}

// List returns requests matching filter, newest first.
func (r *ApprovalRequestRepository) List(ctx context.Context, filter ListFilter, page Page) (*PageResult, error) {
	var (
		conds []string
		args  []any
	)
	if filter.EntityType != nil {
		args = append(args, string(*filter.EntityType))
		conds = append(conds, fmt.Sprintf("r.entity_type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("r.status = $%d", len(args)))
	}

	var where string
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, " AND ")
	}
	countQuery := `SELECT COUNT(*) FROM approval_requests r` + where
	countArgs := append([]any(nil), args...)

	query := `SELECT ` + requestColumns + `, COUNT(*) OVER () AS total
		FROM approval_requests r` + where
	args = append(args, page.Size, page.Offset())
	query += fmt.Sprintf(` ORDER BY r.submitted_at DESC, r.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return r.page(ctx, page, query, countQuery, countArgs, args...)
}

// FindLatestByEntity returns the most recently submitted request for a
// business entity.
func (r *ApprovalRequestRepository) FindLatestByEntity(ctx context.Context, entityType EntityType, entityID string) (*ApprovalRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM approval_requests r
		WHERE r.entity_type = $1 AND r.entity_id = $2
		ORDER BY r.submitted_at DESC, r.id DESC
		LIMIT 1
	`

	req, err := scanRequest(r.db.QueryRow(ctx, query, string(entityType), entityID))
	if err != nil {
		return nil, lookupError(err, "approval request for "+string(entityType), entityID, "failed to find approval request")
	}
	if err := r.attachDecisions(ctx, []*ApprovalRequest{req}); err != nil {
		return nil, err
	}
	return req, nil
}

// page runs a windowed listing query. The window count is absent when the
// page lies past the end, so countQuery supplies the total in that case.
func (r *ApprovalRequestRepository) page(ctx context.Context, page Page, query, countQuery string, countArgs []any, args ...any) (*PageResult, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval requests")
	}
	defer rows.Close()

	result := &PageResult{Items: []*ApprovalRequest{}, Page: page.Number, PageSize: page.Size}
	for rows.Next() {
		req := &ApprovalRequest{}
		var entityType, status string
		if err := rows.Scan(
			&req.ID,
			&entityType,
			&req.EntityID,
			&req.EntityDescription,
			&req.SubmittedByID,
			&req.CurrentLevel,
			&req.TotalLevels,
			&status,
			&req.SubmittedAt,
			&req.CompletedAt,
			&req.Version,
			&result.Total,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval request")
		}
		req.EntityType = EntityType(entityType)
		req.Status = Status(status)
		result.Items = append(result.Items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval requests")
	}
	rows.Close()

	if len(result.Items) == 0 && page.Offset() > 0 {
		if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&result.Total); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count approval requests")
		}
	}

	if err := r.attachDecisions(ctx, result.Items); err != nil {
		return nil, err
	}
	return result, nil
}

// attachDecisions loads decisions for all given requests in one query.
func (r *ApprovalRequestRepository) attachDecisions(ctx context.Context, reqs []*ApprovalRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	ids := make([]string, len(reqs))
	byID := make(map[string]*ApprovalRequest, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
		byID[req.ID] = req
		req.Decisions = nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, request_id, level_order, level_name, expected_approver_id,
		       decision, decided_by_id, decided_at
		FROM approval_level_decisions
		WHERE request_id = ANY($1::uuid[])
		ORDER BY request_id, level_order ASC
	`, ids)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to get level decisions")
	}
	defer rows.Close()

	for rows.Next() {
		d := &ApprovalLevelDecision{}
		var decision string
		if err := rows.Scan(
			&d.ID,
			&d.RequestID,
			&d.LevelOrder,
			&d.LevelName,
			&d.ExpectedApproverID,
			&decision,
			&d.DecidedByID,
			&d.DecidedAt,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to scan level decision")
		}
		d.Decision = Status(decision)
		if req, ok := byID[d.RequestID]; ok {
			req.Decisions = append(req.Decisions, d)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to read level decisions")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

func scanRequest(row rowScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	var entityType, status string
	err := row.Scan(
		&req.ID,
		&entityType,
		&req.EntityID,
		&req.EntityDescription,
		&req.SubmittedByID,
		&req.CurrentLevel,
		&req.TotalLevels,
		&status,
		&req.SubmittedAt,
		&req.CompletedAt,
		&req.Version,
	)
	if err != nil {
		return nil, err
	}
	req.EntityType = EntityType(entityType)
	req.Status = Status(status)
	return req, nil
}
