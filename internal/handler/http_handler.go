package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-erp-approvals/internal/auth"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
	"github.com/pesio-ai/be-erp-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	chains    *service.ChainTemplateService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(approvals *service.ApprovalService, chains *service.ChainTemplateService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		chains:    chains,
		log:       log,
	}
}

// Routes mounts the API on r. Callers are expected to have authenticated
// the request already.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/approvals", func(r chi.Router) {
		r.Get("/", h.ListApprovals)
		r.Post("/", h.CreateApproval)
		r.Get("/by-entity", h.FindApprovalForEntity)
		r.Get("/{id}", h.GetApproval)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
		r.Get("/{id}/history", h.GetHistory)
		r.Get("/{id}/comments", h.GetComments)
	})
	r.Route("/chain-templates", func(r chi.Router) {
		r.Get("/", h.ListChainTemplates)
		r.Post("/", h.CreateChainTemplate)
		r.Get("/{id}", h.GetChainTemplate)
		r.Put("/{id}/levels", h.UpdateChainLevels)
		r.Patch("/{id}/active", h.SetChainTemplateActive)
	})
}

// ── Approval requests ────────────────────────────────────────────────────────

type createApprovalRequest struct {
	EntityType        string `json:"entityType"`
	EntityID          string `json:"entityId"`
	EntityDescription string `json:"entityDescription"`
}

// CreateApproval submits an entity for approval on behalf of the caller
func (h *HTTPHandler) CreateApproval(w http.ResponseWriter, r *http.Request) {
	var body createApprovalRequest
	if !h.decode(w, r, &body) {
		return
	}

	req, err := h.approvals.CreateApprovalRequest(r.Context(), service.CreateApprovalInput{
		EntityType:        repository.EntityType(strings.ToUpper(strings.TrimSpace(body.EntityType))),
		EntityID:          strings.TrimSpace(body.EntityID),
		EntityDescription: body.EntityDescription,
		SubmittedByID:     callerID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           req.ID,
		"status":       req.Status,
		"currentLevel": req.CurrentLevel,
		"totalLevels":  req.TotalLevels,
	})
}

type decisionRequest struct {
	Reason  string `json:"reason"`
	Comment string `json:"comment"`
}

// Approve approves the current level of a request as the caller
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if !h.decode(w, r, &body) {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.approvals.Approve(r.Context(), id, callerID(r), body.Comment); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":      id,
		"message": "Approval request approved at current level",
	})
}

// Reject rejects a request at its current level as the caller
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body decisionRequest
	if !h.decode(w, r, &body) {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.approvals.Reject(r.Context(), id, callerID(r), body.Reason, body.Comment); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":      id,
		"message": "Approval request rejected",
	})
}

// GetApproval returns a request with its levels and comments
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	details, err := h.approvals.GetApprovalDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// GetHistory returns the audit trail of a request, oldest first
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.approvals.GetApprovalHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// GetComments returns the comments attached to a request
func (h *HTTPHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.approvals.GetApprovalComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// ListApprovals serves both the caller's pending queue (myPending=true) and
// the filtered administrative listing
func (h *HTTPHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := parsePage(r)

	var (
		result *repository.PageResult
		err    error
	)
	if myPending, _ := strconv.ParseBool(q.Get("myPending")); myPending {
		result, err = h.approvals.ListPendingApprovals(r.Context(), callerID(r), page)
	} else {
		var filter repository.ListFilter
		if v := strings.TrimSpace(q.Get("entityType")); v != "" {
			et := repository.EntityType(strings.ToUpper(v))
			filter.EntityType = &et
		}
		if v := strings.TrimSpace(q.Get("status")); v != "" {
			st := repository.Status(strings.ToUpper(v))
			filter.Status = &st
		}
		result, err = h.approvals.ListAllApprovals(r.Context(), filter, page)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FindApprovalForEntity returns the latest request for a business entity
func (h *HTTPHandler) FindApprovalForEntity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityType := strings.ToUpper(strings.TrimSpace(q.Get("entityType")))
	entityID := strings.TrimSpace(q.Get("entityId"))
	if entityType == "" || entityID == "" {
		h.writeError(w, r, errors.InvalidInput("entityType/entityId", "both are required"))
		return
	}

	req, err := h.approvals.FindApprovalForEntity(r.Context(), repository.EntityType(entityType), entityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ── Chain templates ──────────────────────────────────────────────────────────

// ListChainTemplates returns every chain template
func (h *HTTPHandler) ListChainTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.chains.ListChainTemplates(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// CreateChainTemplate creates a chain template
func (h *HTTPHandler) CreateChainTemplate(w http.ResponseWriter, r *http.Request) {
	var body service.CreateTemplateInput
	if !h.decode(w, r, &body) {
		return
	}

	t, err := h.chains.CreateChainTemplate(r.Context(), body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetChainTemplate returns one template with its levels
func (h *HTTPHandler) GetChainTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.chains.GetChainTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type updateLevelsRequest struct {
	Levels []service.LevelInput `json:"levels"`
}

// UpdateChainLevels replaces the levels of a template
func (h *HTTPHandler) UpdateChainLevels(w http.ResponseWriter, r *http.Request) {
	var body updateLevelsRequest
	if !h.decode(w, r, &body) {
		return
	}

	t, err := h.chains.UpdateChainLevels(r.Context(), chi.URLParam(r, "id"), body.Levels)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetChainTemplateActive activates or deactivates a template
func (h *HTTPHandler) SetChainTemplateActive(w http.ResponseWriter, r *http.Request) {
	var body setActiveRequest
	if !h.decode(w, r, &body) {
		return
	}
	if body.Active == nil {
		h.writeError(w, r, errors.InvalidInput("active", "is required"))
		return
	}

	t, err := h.chains.SetChainTemplateActive(r.Context(), chi.URLParam(r, "id"), *body.Active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func callerID(r *http.Request) string {
	if uc, err := auth.GetUserContext(r.Context()); err == nil {
		return uc.UserID
	}
	return ""
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || stderrors.Is(err, io.EOF) {
		return true
	}
	h.writeError(w, r, errors.InvalidInput("body", "malformed JSON"))
	return false
}

func parsePage(r *http.Request) repository.Page {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return repository.Page{Number: number, Size: size}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	body := map[string]any{"code": errors.Code(err)}

	var appErr *errors.AppError
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		body["error"] = "internal server error"
	} else if stderrors.As(err, &appErr) {
		body["error"] = appErr.Message
		if appErr.Field != "" {
			body["field"] = appErr.Field
		}
	} else {
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
