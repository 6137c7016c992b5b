// Package memory is an in-process implementation of the approval storage
// used for local development and tests. Transactions hold a store-wide lock
// and restore a snapshot when the callback fails, so callers observe the
// same commit/rollback behaviour as with PostgreSQL.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// Store holds all approval data in memory.
type Store struct {
	mu    sync.Mutex
	data  *state
	users map[string]repository.User
}

type state struct {
	templates  map[string]*repository.ChainTemplate
	requests   map[string]*repository.ApprovalRequest
	history    []*repository.ApprovalHistoryEntry
	comments   []*repository.ApprovalComment
	historySeq int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		data: &state{
			templates: make(map[string]*repository.ChainTemplate),
			requests:  make(map[string]*repository.ApprovalRequest),
		},
		users: make(map[string]repository.User),
	}
}

type txKey struct{ s *Store }

func (s *Store) inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{s}).(bool)
	return ok
}

// lock acquires the store lock unless ctx already runs inside a transaction
// of this store, which holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTransaction runs fn with exclusive access to the store. Any error from fn
// discards every change fn made.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{s}, true))
}

// AddUser registers a user for approver validation.
func (s *Store) AddUser(u repository.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Templates returns the chain template repository view.
func (s *Store) Templates() *TemplateRepository { return &TemplateRepository{s: s} }

// Requests returns the approval request repository view.
func (s *Store) Requests() *RequestRepository { return &RequestRepository{s: s} }

// History returns the approval history repository view.
func (s *Store) History() *HistoryRepository { return &HistoryRepository{s: s} }

// Comments returns the approval comment repository view.
func (s *Store) Comments() *CommentRepository { return &CommentRepository{s: s} }

// Users returns the user directory view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func newID() string {
	return uuid.New().String()
}

// ── Chain templates ──────────────────────────────────────────────────────────

// TemplateRepository is the in-memory chain template store.
type TemplateRepository struct{ s *Store }

// List returns every template ordered by entity type and name.
func (r *TemplateRepository) List(ctx context.Context) ([]*repository.ChainTemplate, error) {
	defer r.s.lock(ctx)()

	out := make([]*repository.ChainTemplate, 0, len(r.s.data.templates))
	for _, t := range r.s.data.templates {
		out = append(out, copyTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GetByID returns a template with its levels.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*repository.ChainTemplate, error) {
	defer r.s.lock(ctx)()

	t, ok := r.s.data.templates[id]
	if !ok {
		return nil, errors.NotFound("chain template", id)
	}
	return copyTemplate(t), nil
}

// GetActiveByEntityType returns the active template for an entity type.
func (r *TemplateRepository) GetActiveByEntityType(ctx context.Context, entityType repository.EntityType) (*repository.ChainTemplate, error) {
	defer r.s.lock(ctx)()

	for _, t := range r.s.data.templates {
		if t.EntityType == entityType && t.Active {
			return copyTemplate(t), nil
		}
	}
	return nil, errors.NotFound("chain template", string(entityType))
}

// Create stores a new template.
func (r *TemplateRepository) Create(ctx context.Context, t *repository.ChainTemplate) error {
	defer r.s.lock(ctx)()

	if t.Active && r.s.activeTemplate(t.EntityType, "") != nil {
		return errors.Business("an active template already exists for entity type %s", t.EntityType)
	}

	now := time.Now().UTC()
	t.ID = newID()
	t.CreatedAt, t.UpdatedAt = now, now
	for _, l := range t.Levels {
		l.ID = newID()
		l.TemplateID = t.ID
	}
	r.s.data.templates[t.ID] = copyTemplate(t)
	return nil
}

// ReplaceLevels swaps the level list of a template.
func (r *TemplateRepository) ReplaceLevels(ctx context.Context, templateID string, levels []*repository.ChainLevel, now time.Time) error {
	defer r.s.lock(ctx)()

	t, ok := r.s.data.templates[templateID]
	if !ok {
		return errors.NotFound("chain template", templateID)
	}
	t.Levels = make([]*repository.ChainLevel, 0, len(levels))
	for _, l := range levels {
		l.ID = newID()
		l.TemplateID = templateID
		cp := *l
		t.Levels = append(t.Levels, &cp)
	}
	t.UpdatedAt = now
	return nil
}

// SetActive toggles the active flag.
func (r *TemplateRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	defer r.s.lock(ctx)()

	t, ok := r.s.data.templates[id]
	if !ok {
		return errors.NotFound("chain template", id)
	}
	if active && r.s.activeTemplate(t.EntityType, id) != nil {
		return errors.Business("another active template already exists for this entity type")
	}
	t.Active = active
	t.UpdatedAt = now
	return nil
}

func (s *Store) activeTemplate(entityType repository.EntityType, exceptID string) *repository.ChainTemplate {
	for id, t := range s.data.templates {
		if id != exceptID && t.EntityType == entityType && t.Active {
			return t
		}
	}
	return nil
}

// ── Approval requests ────────────────────────────────────────────────────────

// RequestRepository is the in-memory approval request store.
type RequestRepository struct{ s *Store }

// Create stores a request and its decisions.
func (r *RequestRepository) Create(ctx context.Context, req *repository.ApprovalRequest) error {
	defer r.s.lock(ctx)()

	req.ID = newID()
	req.Version = 1
	for _, d := range req.Decisions {
		d.ID = newID()
		d.RequestID = req.ID
	}
	r.s.data.requests[req.ID] = copyRequest(req)
	return nil
}

// GetByID returns a request with its decisions.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	defer r.s.lock(ctx)()

	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, errors.NotFound("approval request", id)
	}
	return copyRequest(req), nil
}

// GetByIDForUpdate is GetByID; the transaction already holds the store lock.
func (r *RequestRepository) GetByIDForUpdate(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	return r.GetByID(ctx, id)
}

// Update replaces the stored request if req carries the current version.
func (r *RequestRepository) Update(ctx context.Context, req *repository.ApprovalRequest) error {
	defer r.s.lock(ctx)()

	stored, ok := r.s.data.requests[req.ID]
	if !ok {
		return errors.NotFound("approval request", req.ID)
	}
	if stored.Version != req.Version {
		return errors.Business("approval request %s was modified concurrently", req.ID)
	}
	req.Version++
	r.s.data.requests[req.ID] = copyRequest(req)
	return nil
}

// Exists reports whether a request exists.
func (r *RequestRepository) Exists(ctx context.Context, id string) (bool, error) {
	defer r.s.lock(ctx)()

	_, ok := r.s.data.requests[id]
	return ok, nil
}

// ListPendingForUser returns PENDING requests awaiting userID at their
// current level.
func (r *RequestRepository) ListPendingForUser(ctx context.Context, userID string, page repository.Page) (*repository.PageResult, error) {
	return r.filter(ctx, page, func(req *repository.ApprovalRequest) bool {
		if req.Status != repository.StatusPending {
			return false
		}
		d := req.CurrentDecision()
		return d != nil && d.ExpectedApproverID == userID
	})
}

// List returns requests matching filter.
func (r *RequestRepository) List(ctx context.Context, filter repository.ListFilter, page repository.Page) (*repository.PageResult, error) {
	return r.filter(ctx, page, func(req *repository.ApprovalRequest) bool {
		if filter.EntityType != nil && req.EntityType != *filter.EntityType {
			return false
		}
		if filter.Status != nil && req.Status != *filter.Status {
			return false
		}
		return true
	})
}

// FindLatestByEntity returns the most recent request for a business entity.
func (r *RequestRepository) FindLatestByEntity(ctx context.Context, entityType repository.EntityType, entityID string) (*repository.ApprovalRequest, error) {
	defer r.s.lock(ctx)()

	var latest *repository.ApprovalRequest
	for _, req := range r.s.data.requests {
		if req.EntityType != entityType || req.EntityID != entityID {
			continue
		}
		if latest == nil || req.SubmittedAt.After(latest.SubmittedAt) ||
			(req.SubmittedAt.Equal(latest.SubmittedAt) && req.ID > latest.ID) {
			latest = req
		}
	}
	if latest == nil {
		return nil, errors.NotFound("approval request for "+string(entityType), entityID)
	}
	return copyRequest(latest), nil
}

func (r *RequestRepository) filter(ctx context.Context, page repository.Page, match func(*repository.ApprovalRequest) bool) (*repository.PageResult, error) {
	defer r.s.lock(ctx)()

	var matched []*repository.ApprovalRequest
	for _, req := range r.s.data.requests {
		if match(req) {
			matched = append(matched, req)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	result := &repository.PageResult{
		Items:    []*repository.ApprovalRequest{},
		Total:    int64(len(matched)),
		Page:     page.Number,
		PageSize: page.Size,
	}
	start := page.Offset()
	if start < 0 || start >= len(matched) {
		return result, nil
	}
	end := len(matched)
	if page.Size > 0 && page.Size < end-start {
		end = start + page.Size
	}
	for _, req := range matched[start:end] {
		result.Items = append(result.Items, copyRequest(req))
	}
	return result, nil
}

// ── History and comments ─────────────────────────────────────────────────────

// HistoryRepository is the in-memory append-only history log.
type HistoryRepository struct{ s *Store }

// Append adds an entry.
func (r *HistoryRepository) Append(ctx context.Context, entry *repository.ApprovalHistoryEntry) error {
	defer r.s.lock(ctx)()

	r.s.data.historySeq++
	entry.ID = strconv.FormatInt(r.s.data.historySeq, 10)
	cp := *entry
	r.s.data.history = append(r.s.data.history, &cp)
	return nil
}

// ListByRequest returns entries oldest-first.
func (r *HistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]*repository.ApprovalHistoryEntry, error) {
	defer r.s.lock(ctx)()

	out := []*repository.ApprovalHistoryEntry{}
	for _, e := range r.s.data.history {
		if e.ApprovalRequestID == requestID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CommentRepository is the in-memory comment store.
type CommentRepository struct{ s *Store }

// Create adds a comment.
func (r *CommentRepository) Create(ctx context.Context, c *repository.ApprovalComment) error {
	defer r.s.lock(ctx)()

	c.ID = newID()
	cp := *c
	r.s.data.comments = append(r.s.data.comments, &cp)
	return nil
}

// ListByRequest returns a request's comments oldest-first.
func (r *CommentRepository) ListByRequest(ctx context.Context, requestID string) ([]*repository.ApprovalComment, error) {
	defer r.s.lock(ctx)()

	out := []*repository.ApprovalComment{}
	for _, c := range r.s.data.comments {
		if c.ApprovalRequestID == requestID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── Users ────────────────────────────────────────────────────────────────────

// UserRepository resolves users registered with AddUser.
type UserRepository struct{ s *Store }

// GetByID returns the user or a "User" NotFound error.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*repository.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("User", id)
	}
	return &u, nil
}

// ── copy helpers ─────────────────────────────────────────────────────────────

func (st *state) clone() *state {
	c := &state{
		templates:  make(map[string]*repository.ChainTemplate, len(st.templates)),
		requests:   make(map[string]*repository.ApprovalRequest, len(st.requests)),
		history:    append([]*repository.ApprovalHistoryEntry(nil), st.history...),
		comments:   append([]*repository.ApprovalComment(nil), st.comments...),
		historySeq: st.historySeq,
	}
	for id, t := range st.templates {
		c.templates[id] = copyTemplate(t)
	}
	for id, r := range st.requests {
		c.requests[id] = copyRequest(r)
	}
	return c
}

func copyTemplate(t *repository.ChainTemplate) *repository.ChainTemplate {
	cp := *t
	cp.Levels = make([]*repository.ChainLevel, len(t.Levels))
	for i, l := range t.Levels {
		lc := *l
		cp.Levels[i] = &lc
	}
	return &cp
}

func copyRequest(r *repository.ApprovalRequest) *repository.ApprovalRequest {
	cp := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	cp.Decisions = make([]*repository.ApprovalLevelDecision, len(r.Decisions))
	for i, d := range r.Decisions {
		dc := *d
		if d.DecidedByID != nil {
			v := *d.DecidedByID
			dc.DecidedByID = &v
		}
		if d.DecidedAt != nil {
			v := *d.DecidedAt
			dc.DecidedAt = &v
		}
		cp.Decisions[i] = &dc
	}
	return &cp
}
