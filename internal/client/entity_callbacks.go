package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// entityTable describes how a business table records an approval outcome.
type entityTable struct {
	kind           string
	table          string
	approvedStatus string
	approvedBy     string
	approvedAt     string
}

var (
	quotationTable = entityTable{
		kind:           "quotation",
		table:          "quotations",
		approvedStatus: "APPROVED",
		approvedBy:     "approved_by",
		approvedAt:     "approved_at",
	}
	purchaseOrderTable = entityTable{
		kind:           "purchase order",
		table:          "purchase_orders",
		approvedStatus: "RELEASED",
		approvedBy:     "released_by",
		approvedAt:     "released_at",
	}
)

// TableCallback updates the business entity row when its approval finishes.
// Statements run on the transaction carried by ctx, so a failure here rolls
// back the approval transition.
type TableCallback struct {
	db *database.DB
	t  entityTable
}

// NewQuotationCallback marks quotations APPROVED or REJECTED.
func NewQuotationCallback(db *database.DB) *TableCallback {
	return &TableCallback{db: db, t: quotationTable}
}

// NewPurchaseOrderCallback marks purchase orders RELEASED or REJECTED.
func NewPurchaseOrderCallback(db *database.DB) *TableCallback {
	return &TableCallback{db: db, t: purchaseOrderTable}
}

// OnApproved records the final approval on the entity.
func (c *TableCallback) OnApproved(ctx context.Context, entityID, approverID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, %s = $3, %s = NOW(), rejection_reason = NULL, updated_at = NOW()
		WHERE id = $1
	`, c.t.table, c.t.approvedBy, c.t.approvedAt)

	return c.exec(ctx, entityID, query, entityID, c.t.approvedStatus, approverID)
}

// OnRejected records the rejection and its reason on the entity.
func (c *TableCallback) OnRejected(ctx context.Context, entityID, reason string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'REJECTED', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, c.t.table)

	return c.exec(ctx, entityID, query, entityID, reason)
}

func (c *TableCallback) exec(ctx context.Context, entityID, query string, args ...any) error {
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update "+c.t.kind)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound(c.t.kind, entityID)
	}
	return nil
}

// LogCallback only logs outcomes. It stands in for the business modules when
// the service runs on the memory store.
type LogCallback struct {
	entityType repository.EntityType
	log        zerolog.Logger
}

// NewLogCallback creates a LogCallback for one entity type.
func NewLogCallback(entityType repository.EntityType, log zerolog.Logger) *LogCallback {
	return &LogCallback{entityType: entityType, log: log}
}

func (c *LogCallback) OnApproved(_ context.Context, entityID, approverID string) error {
	c.log.Info().
		Str("entity_type", string(c.entityType)).
		Str("entity_id", entityID).
		Str("approver_id", approverID).
		Msg("Entity approved")
	return nil
}

func (c *LogCallback) OnRejected(_ context.Context, entityID, reason string) error {
	c.log.Info().
		Str("entity_type", string(c.entityType)).
		Str("entity_id", entityID).
		Str("reason", reason).
		Msg("Entity rejected")
	return nil
}
