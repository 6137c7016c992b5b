package repository

import (
	"math"
	"time"
)

// ── Domain types for the approval workflow ───────────────────────────────────

// EntityType tags the kind of business object an approval chain governs.
type EntityType string

const (
	EntityTypeQuotation     EntityType = "QUOTATION"
	EntityTypePurchaseOrder EntityType = "PURCHASE_ORDER"
)

// Status is the lifecycle state of a request and of each level decision.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// HistoryAction is the kind of an append-only history entry.
type HistoryAction string

const (
	ActionSubmitted HistoryAction = "SUBMITTED"
	ActionApproved  HistoryAction = "APPROVED"
	ActionRejected  HistoryAction = "REJECTED"
)

// ChainTemplate is the configured, ordered list of approval levels for one
// entity type.
type ChainTemplate struct {
	ID          string        `json:"id"`
	EntityType  EntityType    `json:"entityType"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Active      bool          `json:"active"`
	Levels      []*ChainLevel `json:"levels"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ChainLevel is one step of a template, bound to exactly one approver.
type ChainLevel struct {
	ID             string `json:"id,omitempty"`
	TemplateID     string `json:"templateId,omitempty"`
	LevelOrder     int    `json:"levelOrder"`
	LevelName      string `json:"levelName"`
	ApproverUserID string `json:"approverUserId"`
	Required       bool   `json:"required"`
}

// ApprovalRequest is one walk of a chain for one business entity. Its
// decisions are snapshotted from the template at creation time.
type ApprovalRequest struct {
	ID                string                   `json:"id"`
	EntityType        EntityType               `json:"entityType"`
	EntityID          string                   `json:"entityId"`
	EntityDescription string                   `json:"entityDescription"`
	SubmittedByID     string                   `json:"submittedById"`
	CurrentLevel      int                      `json:"currentLevel"`
	TotalLevels       int                      `json:"totalLevels"`
	Status            Status                   `json:"status"`
	SubmittedAt       time.Time                `json:"submittedAt"`
	CompletedAt       *time.Time               `json:"completedAt,omitempty"`
	Version           int                      `json:"version"`
	Decisions         []*ApprovalLevelDecision `json:"levels"`
}

// ApprovalLevelDecision records whether, when and by whom a level was decided.
type ApprovalLevelDecision struct {
	ID                 string     `json:"id,omitempty"`
	RequestID          string     `json:"requestId,omitempty"`
	LevelOrder         int        `json:"levelOrder"`
	LevelName          string     `json:"levelName"`
	ExpectedApproverID string     `json:"expectedApproverId"`
	Decision           Status     `json:"decision"`
	DecidedByID        *string    `json:"decidedById,omitempty"`
	DecidedAt          *time.Time `json:"decidedAt,omitempty"`
}

// CurrentDecision returns the decision at CurrentLevel, or nil if the
// request is inconsistent.
func (r *ApprovalRequest) CurrentDecision() *ApprovalLevelDecision {
	for _, d := range r.Decisions {
		if d.LevelOrder == r.CurrentLevel {
			return d
		}
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible.
func (r *ApprovalRequest) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// ApprovalHistoryEntry is one write-once audit record.
type ApprovalHistoryEntry struct {
	ID                string        `json:"id"`
	ApprovalRequestID string        `json:"approvalRequestId"`
	Action            HistoryAction `json:"action"`
	ActorID           string        `json:"actorId"`
	Comment           *string       `json:"comment,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// ApprovalComment is free text attached to a request, e.g. a rejection reason.
type ApprovalComment struct {
	ID                string    `json:"id"`
	ApprovalRequestID string    `json:"approvalRequestId"`
	AuthorID          string    `json:"authorId"`
	Body              string    `json:"body"`
	CreatedAt         time.Time `json:"createdAt"`
}

// User is the slice of the ERP user record the approval engine needs.
type User struct {
	ID       string
	Username string
	Active   bool
}

// ── Query types ──────────────────────────────────────────────────────────────

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip. It saturates at math.MaxInt
// and is never negative.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// PageResult is one page of approval requests plus the unpaged total.
type PageResult struct {
	Items    []*ApprovalRequest `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

// ListFilter holds optional equality filters for the admin listing.
type ListFilter struct {
	EntityType *EntityType
	Status     *Status
}
