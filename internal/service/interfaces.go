package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// Transactor runs fn as one unit of work. Storage calls made with the context
// passed to fn join the unit of work; an error from fn rolls all of them back.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChainTemplateStore persists chain templates.
type ChainTemplateStore interface {
	List(ctx context.Context) ([]*repository.ChainTemplate, error)
	GetByID(ctx context.Context, id string) (*repository.ChainTemplate, error)
	GetActiveByEntityType(ctx context.Context, entityType repository.EntityType) (*repository.ChainTemplate, error)
	Create(ctx context.Context, t *repository.ChainTemplate) error
	ReplaceLevels(ctx context.Context, templateID string, levels []*repository.ChainLevel, now time.Time) error
	SetActive(ctx context.Context, id string, active bool, now time.Time) error
}

// ApprovalRequestStore persists approval requests with their decisions.
type ApprovalRequestStore interface {
	Create(ctx context.Context, req *repository.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	GetByIDForUpdate(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	Update(ctx context.Context, req *repository.ApprovalRequest) error
	Exists(ctx context.Context, id string) (bool, error)
	ListPendingForUser(ctx context.Context, userID string, page repository.Page) (*repository.PageResult, error)
	List(ctx context.Context, filter repository.ListFilter, page repository.Page) (*repository.PageResult, error)
	FindLatestByEntity(ctx context.Context, entityType repository.EntityType, entityID string) (*repository.ApprovalRequest, error)
}

// ApprovalHistoryStore is the append-only history log.
type ApprovalHistoryStore interface {
	Append(ctx context.Context, entry *repository.ApprovalHistoryEntry) error
	ListByRequest(ctx context.Context, requestID string) ([]*repository.ApprovalHistoryEntry, error)
}

// ApprovalCommentStore persists request comments.
type ApprovalCommentStore interface {
	Create(ctx context.Context, c *repository.ApprovalComment) error
	ListByRequest(ctx context.Context, requestID string) ([]*repository.ApprovalComment, error)
}

// UserDirectory resolves ERP users by id. Missing users yield a NotFound
// error of kind "User".
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*repository.User, error)
}

// Notifier publishes approval events after a transition has committed.
// Implementations must not fail the caller.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string, payload map[string]any)
}

type nopNotifier struct{}

func (nopNotifier) PublishApprovalEvent(context.Context, string, *repository.ApprovalRequest, string, []string, map[string]any) {
}
