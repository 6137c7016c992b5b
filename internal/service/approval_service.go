package service

import (
	"context"
	"strings"
	"time"

	"github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
	"github.com/pesio-ai/be-erp-approvals/internal/metrics"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// Notification event types published after a transition commits.
const (
	EventApprovalSubmitted = "approval_submitted"
	EventApprovalRequired  = "approval_required"
	EventApprovalApproved  = "approval_approved"
	EventApprovalRejected  = "approval_rejected"
)

// ApprovalService is the sequential multi-level approval engine.
type ApprovalService struct {
	tx        Transactor
	templates ChainTemplateStore
	requests  ApprovalRequestStore
	history   ApprovalHistoryStore
	comments  ApprovalCommentStore
	callbacks *CallbackRegistry
	notifier  Notifier
	log       *logger.Logger
	now       func() time.Time
}

// NewApprovalService creates a new ApprovalService. notifier may be nil.
func NewApprovalService(
	tx Transactor,
	templates ChainTemplateStore,
	requests ApprovalRequestStore,
	history ApprovalHistoryStore,
	comments ApprovalCommentStore,
	callbacks *CallbackRegistry,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ApprovalService{
		tx:        tx,
		templates: templates,
		requests:  requests,
		history:   history,
		comments:  comments,
		callbacks: callbacks,
		notifier:  notifier,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateApprovalInput identifies the business entity being submitted.
type CreateApprovalInput struct {
	EntityType        repository.EntityType
	EntityID          string
	EntityDescription string
	SubmittedByID     string
}

// ApprovalDetails is a request with its ordered levels and comments.
type ApprovalDetails struct {
	*repository.ApprovalRequest
	Comments []*repository.ApprovalComment `json:"comments"`
}

// ── Creation ──────────────────────────────────────────────────────────────────

// CreateApprovalRequest starts a chain walk for an entity using the active
// chain template of its type. Levels are snapshotted onto the request.
func (s *ApprovalService) CreateApprovalRequest(ctx context.Context, in CreateApprovalInput) (req *repository.ApprovalRequest, err error) {
	defer s.observe("create", time.Now(), &err)

	if strings.TrimSpace(in.EntityID) == "" {
		return nil, errors.InvalidInput("entityId", "is required")
	}
	if strings.TrimSpace(in.SubmittedByID) == "" {
		return nil, errors.InvalidInput("submittedById", "is required")
	}
	if _, ok := s.callbacks.Lookup(in.EntityType); !ok {
		return nil, errors.Business("unsupported entity type for approval: %q (supported: %v)",
			in.EntityType, s.callbacks.EntityTypes())
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		tpl, err := s.templates.GetActiveByEntityType(ctx, in.EntityType)
		if err != nil {
			return err
		}
		if len(tpl.Levels) == 0 {
			return errors.Business("chain template %q has no approval levels configured", tpl.Name)
		}

		now := s.now()
		req = &repository.ApprovalRequest{
			EntityType:        in.EntityType,
			EntityID:          in.EntityID,
			EntityDescription: in.EntityDescription,
			SubmittedByID:     in.SubmittedByID,
			CurrentLevel:      1,
			TotalLevels:       len(tpl.Levels),
			Status:            repository.StatusPending,
			SubmittedAt:       now,
			Decisions:         make([]*repository.ApprovalLevelDecision, 0, len(tpl.Levels)),
		}
		for _, l := range tpl.Levels {
			req.Decisions = append(req.Decisions, &repository.ApprovalLevelDecision{
				LevelOrder:         l.LevelOrder,
				LevelName:          l.LevelName,
				ExpectedApproverID: l.ApproverUserID,
				Decision:           repository.StatusPending,
			})
		}

		if err := s.requests.Create(ctx, req); err != nil {
			return err
		}
		return s.history.Append(ctx, &repository.ApprovalHistoryEntry{
			ApprovalRequestID: req.ID,
			Action:            repository.ActionSubmitted,
			ActorID:           in.SubmittedByID,
			CreatedAt:         now,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(req.EntityType), string(repository.ActionSubmitted))
	s.log.Info().
		Str("approval_request_id", req.ID).
		Str("entity_type", string(req.EntityType)).
		Str("entity_id", req.EntityID).
		Int("total_levels", req.TotalLevels).
		Msg("Approval request created")

	s.notifier.PublishApprovalEvent(ctx, EventApprovalSubmitted, req, in.SubmittedByID,
		[]string{in.SubmittedByID}, nil)
	s.notifyCurrentApprover(ctx, req, in.SubmittedByID)

	return req, nil
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve records the current level's approval. The request advances to the
// next level, or becomes APPROVED on the final level, which fires the
// entity's approve callback in the same transaction.
func (s *ApprovalService) Approve(ctx context.Context, requestID, actingUserID, comment string) (req *repository.ApprovalRequest, err error) {
	defer s.observe("approve", time.Now(), &err)

	if strings.TrimSpace(actingUserID) == "" {
		return nil, errors.InvalidInput("actingUserId", "is required")
	}

	var decidedLevel int
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		locked, decision, err := s.loadForDecision(ctx, requestID, actingUserID)
		if err != nil {
			return err
		}
		req = locked

		now := s.now()
		decidedLevel = req.CurrentLevel
		decision.Decision = repository.StatusApproved
		decision.DecidedByID = &actingUserID
		decision.DecidedAt = &now

		final := req.CurrentLevel >= req.TotalLevels
		if final {
			req.Status = repository.StatusApproved
			req.CompletedAt = &now
		} else {
			req.CurrentLevel++
		}

		if err := s.requests.Update(ctx, req); err != nil {
			return err
		}
		if err := s.history.Append(ctx, &repository.ApprovalHistoryEntry{
			ApprovalRequestID: req.ID,
			Action:            repository.ActionApproved,
			ActorID:           actingUserID,
			Comment:           optional(comment),
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		if !final {
			return nil
		}
		cb, err := s.callbackFor(req.EntityType)
		if err != nil {
			return err
		}
		return cb.OnApproved(ctx, req.EntityID, actingUserID)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(req.EntityType), string(repository.ActionApproved))
	s.log.Info().
		Str("approval_request_id", req.ID).
		Str("approver_id", actingUserID).
		Int("level", decidedLevel).
		Str("status", string(req.Status)).
		Msg("Approval level approved")

	if req.Status == repository.StatusApproved {
		s.notifier.PublishApprovalEvent(ctx, EventApprovalApproved, req, actingUserID,
			[]string{req.SubmittedByID}, map[string]any{"level": decidedLevel})
	} else {
		s.notifyCurrentApprover(ctx, req, actingUserID)
	}

	return req, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject stops the chain at the current level. Later levels stay PENDING and
// are never visited. The reason is stored as a comment and passed to the
// entity's reject callback.
func (s *ApprovalService) Reject(ctx context.Context, requestID, actingUserID, reason, comment string) (req *repository.ApprovalRequest, err error) {
	defer s.observe("reject", time.Now(), &err)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.Business("a rejection reason is required")
	}
	if strings.TrimSpace(actingUserID) == "" {
		return nil, errors.InvalidInput("actingUserId", "is required")
	}

	var decidedLevel int
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		locked, decision, err := s.loadForDecision(ctx, requestID, actingUserID)
		if err != nil {
			return err
		}
		req = locked

		now := s.now()
		decidedLevel = req.CurrentLevel
		decision.Decision = repository.StatusRejected
		decision.DecidedByID = &actingUserID
		decision.DecidedAt = &now
		req.Status = repository.StatusRejected
		req.CompletedAt = &now

		if err := s.requests.Update(ctx, req); err != nil {
			return err
		}
		if err := s.comments.Create(ctx, &repository.ApprovalComment{
			ApprovalRequestID: req.ID,
			AuthorID:          actingUserID,
			Body:              reason,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		historyComment := optional(comment)
		if historyComment == nil {
			historyComment = &reason
		}
		if err := s.history.Append(ctx, &repository.ApprovalHistoryEntry{
			ApprovalRequestID: req.ID,
			Action:            repository.ActionRejected,
			ActorID:           actingUserID,
			Comment:           historyComment,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		cb, err := s.callbackFor(req.EntityType)
		if err != nil {
			return err
		}
		return cb.OnRejected(ctx, req.EntityID, reason)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(req.EntityType), string(repository.ActionRejected))
	s.log.Info().
		Str("approval_request_id", req.ID).
		Str("approver_id", actingUserID).
		Int("level", decidedLevel).
		Msg("Approval request rejected")

	s.notifier.PublishApprovalEvent(ctx, EventApprovalRejected, req, actingUserID,
		[]string{req.SubmittedByID}, map[string]any{"level": decidedLevel, "reason": reason})

	return req, nil
}

// loadForDecision locks the request and returns it with the decision the
// acting user is allowed to make. A user who is not the current level's
// approver is denied, whether or not they approve some other level.
func (s *ApprovalService) loadForDecision(ctx context.Context, requestID, actingUserID string) (*repository.ApprovalRequest, *repository.ApprovalLevelDecision, error) {
	req, err := s.requests.GetByIDForUpdate(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != repository.StatusPending {
		return nil, nil, errors.Business("approval request %s is already %s", req.ID, strings.ToLower(string(req.Status)))
	}

	decision := req.CurrentDecision()
	if decision == nil || decision.Decision != repository.StatusPending {
		return nil, nil, errors.New(errors.ErrCodeInternal, "approval request "+req.ID+" has no pending decision at its current level")
	}
	if decision.ExpectedApproverID != actingUserID {
		return nil, nil, errors.AccessDenied("user %s is not the approver for the current level (%d, %s) of approval request %s",
			actingUserID, decision.LevelOrder, decision.LevelName, req.ID)
	}
	return req, decision, nil
}

func (s *ApprovalService) callbackFor(entityType repository.EntityType) (EntityCallback, error) {
	cb, ok := s.callbacks.Lookup(entityType)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "no entity callback registered for "+string(entityType))
	}
	return cb, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetApprovalDetails returns a request with its ordered levels and comments.
func (s *ApprovalService) GetApprovalDetails(ctx context.Context, id string) (*ApprovalDetails, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ApprovalDetails{ApprovalRequest: req, Comments: comments}, nil
}

// GetApprovalHistory returns a request's history oldest-first. An unknown id
// is NotFound, distinct from an empty history.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, id string) ([]*repository.ApprovalHistoryEntry, error) {
	if err := s.mustExist(ctx, id); err != nil {
		return nil, err
	}
	return s.history.ListByRequest(ctx, id)
}

// GetApprovalComments returns the comments recorded on a request.
func (s *ApprovalService) GetApprovalComments(ctx context.Context, id string) ([]*repository.ApprovalComment, error) {
	if err := s.mustExist(ctx, id); err != nil {
		return nil, err
	}
	return s.comments.ListByRequest(ctx, id)
}

// ListPendingApprovals returns the requests waiting on userID right now.
func (s *ApprovalService) ListPendingApprovals(ctx context.Context, userID string, page repository.Page) (*repository.PageResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.InvalidInput("userId", "is required")
	}
	return s.requests.ListPendingForUser(ctx, userID, NormalizePage(page))
}

// ListAllApprovals is the unrestricted administrative listing.
func (s *ApprovalService) ListAllApprovals(ctx context.Context, filter repository.ListFilter, page repository.Page) (*repository.PageResult, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, errors.InvalidInput("status", "must be one of PENDING, APPROVED, REJECTED")
	}
	return s.requests.List(ctx, filter, NormalizePage(page))
}

// FindApprovalForEntity returns the latest request submitted for an entity.
func (s *ApprovalService) FindApprovalForEntity(ctx context.Context, entityType repository.EntityType, entityID string) (*repository.ApprovalRequest, error) {
	return s.requests.FindLatestByEntity(ctx, entityType, entityID)
}

// Exists reports whether an approval request exists.
func (s *ApprovalService) Exists(ctx context.Context, id string) (bool, error) {
	return s.requests.Exists(ctx, id)
}

func (s *ApprovalService) mustExist(ctx context.Context, id string) error {
	ok, err := s.requests.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound("approval request", id)
	}
	return nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *ApprovalService) notifyCurrentApprover(ctx context.Context, req *repository.ApprovalRequest, actorID string) {
	d := req.CurrentDecision()
	if d == nil {
		return
	}
	s.notifier.PublishApprovalEvent(ctx, EventApprovalRequired, req, actorID,
		[]string{d.ExpectedApproverID}, map[string]any{"level": d.LevelOrder, "level_name": d.LevelName})
}

func (s *ApprovalService) observe(operation string, started time.Time, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = string(errors.Code(*errp))
		s.log.Debug().Err(*errp).Str("operation", operation).Msg("Approval operation failed")
	}
	metrics.ObserveOperation(operation, outcome, started)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
