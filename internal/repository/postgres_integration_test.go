package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-erp-approvals/internal/client"
	apperrors "github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
	"github.com/pesio-ai/be-erp-approvals/internal/service"
	"github.com/pesio-ai/be-erp-approvals/internal/testutil"
)

type pgEngine struct {
	pg        *testutil.Postgres
	requests  *repository.ApprovalRequestRepository
	approvals *service.ApprovalService
	chains    *service.ChainTemplateService
	template  *repository.ChainTemplate
}

func newPGEngine(t *testing.T) *pgEngine {
	t.Helper()
	pg := testutil.StartPostgres(t)
	db := pg.DB

	pg.Exec(t, `INSERT INTO users (id, username) VALUES
		('u-sales', 'sales'), ('u-manager', 'manager'), ('u-director', 'director')`)

	registry := service.NewCallbackRegistry()
	registry.Register(repository.EntityTypeQuotation, client.NewQuotationCallback(db))
	registry.Register(repository.EntityTypePurchaseOrder, client.NewPurchaseOrderCallback(db))

	log := logger.Nop()
	templates := repository.NewChainTemplateRepository(db)
	requests := repository.NewApprovalRequestRepository(db)
	e := &pgEngine{
		pg:       pg,
		requests: requests,
		approvals: service.NewApprovalService(db, templates, requests,
			repository.NewApprovalHistoryRepository(db), repository.NewApprovalCommentRepository(db),
			registry, nil, log),
		chains: service.NewChainTemplateService(db, templates, repository.NewUserRepository(db), log),
	}

	tpl, err := e.chains.CreateChainTemplate(context.Background(), service.CreateTemplateInput{
		EntityType: repository.EntityTypeQuotation,
		Name:       "Quotation approval",
		Active:     true,
		Levels: []service.LevelInput{
			{LevelOrder: 2, LevelName: "Director", ApproverUserID: "u-director"},
			{LevelOrder: 1, LevelName: "Manager", ApproverUserID: "u-manager"},
		},
	})
	require.NoError(t, err)
	e.template = tpl
	return e
}

func (e *pgEngine) submit(t *testing.T, quotationID string) *repository.ApprovalRequest {
	t.Helper()
	req, err := e.approvals.CreateApprovalRequest(context.Background(), service.CreateApprovalInput{
		EntityType:    repository.EntityTypeQuotation,
		EntityID:      quotationID,
		SubmittedByID: "u-sales",
	})
	require.NoError(t, err)
	return req
}

func (e *pgEngine) quotation(t *testing.T, id string) (status string, approvedBy, reason *string) {
	t.Helper()
	err := e.pg.DB.QueryRow(context.Background(),
		`SELECT status, approved_by, rejection_reason FROM quotations WHERE id = $1`, id,
	).Scan(&status, &approvedBy, &reason)
	require.NoError(t, err)
	return status, approvedBy, reason
}

func TestPostgresApprovalLifecycle(t *testing.T) {
	e := newPGEngine(t)
	ctx := context.Background()

	require.Len(t, e.template.Levels, 2)
	assert.Equal(t, "Manager", e.template.Levels[0].LevelName)

	t.Run("approve through every level", func(t *testing.T) {
		e.pg.Exec(t, `INSERT INTO quotations (id, status) VALUES ('Q-1', 'PENDING_APPROVAL')`)
		req := e.submit(t, "Q-1")
		assert.Equal(t, 1, req.Version)

		_, err := e.approvals.Approve(ctx, req.ID, "u-director", "")
		assert.Equal(t, apperrors.ErrCodeAccessDenied, apperrors.Code(err))

		mid, err := e.approvals.Approve(ctx, req.ID, "u-manager", "ok")
		require.NoError(t, err)
		assert.Equal(t, 2, mid.CurrentLevel)

		pending, err := e.approvals.ListPendingApprovals(ctx, "u-director", repository.Page{})
		require.NoError(t, err)
		require.Len(t, pending.Items, 1)
		assert.Equal(t, req.ID, pending.Items[0].ID)
		require.Len(t, pending.Items[0].Decisions, 2)

		final, err := e.approvals.Approve(ctx, req.ID, "u-director", "")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusApproved, final.Status)

		status, approvedBy, _ := e.quotation(t, "Q-1")
		assert.Equal(t, "APPROVED", status)
		require.NotNil(t, approvedBy)
		assert.Equal(t, "u-director", *approvedBy)

		history, err := e.approvals.GetApprovalHistory(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, repository.ActionSubmitted, history[0].Action)

		_, err = e.approvals.Approve(ctx, req.ID, "u-director", "")
		assert.Equal(t, apperrors.ErrCodeBusiness, apperrors.Code(err))
	})

	t.Run("reject stores reason on quotation", func(t *testing.T) {
		e.pg.Exec(t, `INSERT INTO quotations (id, status) VALUES ('Q-2', 'PENDING_APPROVAL')`)
		req := e.submit(t, "Q-2")

		rejected, err := e.approvals.Reject(ctx, req.ID, "u-manager", "Price too high", "")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusRejected, rejected.Status)
		assert.Equal(t, repository.StatusPending, rejected.Decisions[1].Decision)

		status, _, reason := e.quotation(t, "Q-2")
		assert.Equal(t, "REJECTED", status)
		require.NotNil(t, reason)
		assert.Equal(t, "Price too high", *reason)

		comments, err := e.approvals.GetApprovalComments(ctx, req.ID)
		require.NoError(t, err)
		require.Len(t, comments, 1)
		assert.Equal(t, "Price too high", comments[0].Body)
	})

	t.Run("callback failure rolls back", func(t *testing.T) {
		req := e.submit(t, "Q-missing")
		_, err := e.approvals.Approve(ctx, req.ID, "u-manager", "")
		require.NoError(t, err)

		_, err = e.approvals.Approve(ctx, req.ID, "u-director", "")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))

		current, err := e.requests.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, repository.StatusPending, current.Status)
		assert.Equal(t, 2, current.CurrentLevel)
		assert.Nil(t, current.Decisions[1].DecidedByID)

		history, err := e.approvals.GetApprovalHistory(ctx, req.ID)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("lookups", func(t *testing.T) {
		_, err := e.approvals.GetApprovalDetails(ctx, "not-a-uuid")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))

		_, err = e.approvals.GetApprovalHistory(ctx, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))

		found, err := e.approvals.FindApprovalForEntity(ctx, repository.EntityTypeQuotation, "Q-2")
		require.NoError(t, err)
		assert.Equal(t, repository.StatusRejected, found.Status)

		rejected := repository.StatusRejected
		page, err := e.approvals.ListAllApprovals(ctx, repository.ListFilter{Status: &rejected}, repository.Page{Number: 1, Size: 10})
		require.NoError(t, err)
		assert.EqualValues(t, 1, page.Total)

		page, err = e.approvals.ListAllApprovals(ctx, repository.ListFilter{Status: &rejected}, repository.Page{Number: 5, Size: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.EqualValues(t, 1, page.Total)

		page, err = e.approvals.ListAllApprovals(ctx, repository.ListFilter{}, repository.Page{Number: 1 << 62, Size: 20})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.EqualValues(t, 3, page.Total)

		pending, err := e.approvals.ListPendingApprovals(ctx, "u-director", repository.Page{Number: 9, Size: 10})
		require.NoError(t, err)
		assert.Empty(t, pending.Items)
		assert.EqualValues(t, 1, pending.Total)
	})

	t.Run("latest by entity breaks submitted_at ties by id", func(t *testing.T) {
		e.pg.Exec(t, `INSERT INTO approval_requests
			(id, entity_type, entity_id, submitted_by_id, current_level, total_levels, status, submitted_at)
			VALUES
			('00000000-0000-0000-0000-0000000000a1', 'QUOTATION', 'Q-tie', 'u-sales', 1, 1, 'PENDING', '2026-01-01T09:00:00Z'),
			('00000000-0000-0000-0000-0000000000a2', 'QUOTATION', 'Q-tie', 'u-sales', 1, 1, 'PENDING', '2026-01-01T09:00:00Z')`)

		found, err := e.approvals.FindApprovalForEntity(ctx, repository.EntityTypeQuotation, "Q-tie")
		require.NoError(t, err)
		assert.Equal(t, "00000000-0000-0000-0000-0000000000a2", found.ID)
	})
}

func TestPostgresChainTemplateValidation(t *testing.T) {
	e := newPGEngine(t)
	ctx := context.Background()

	_, err := e.chains.UpdateChainLevels(ctx, e.template.ID, []service.LevelInput{
		{LevelOrder: 1, LevelName: "Manager", ApproverUserID: "u-manager"},
		{LevelOrder: 3, LevelName: "Director", ApproverUserID: "u-director"},
	})
	assert.Equal(t, apperrors.ErrCodeBusiness, apperrors.Code(err))

	_, err = e.chains.UpdateChainLevels(ctx, e.template.ID, []service.LevelInput{
		{LevelOrder: 1, LevelName: "Ghost", ApproverUserID: "u-ghost"},
	})
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))

	tpl, err := e.chains.GetChainTemplate(ctx, e.template.ID)
	require.NoError(t, err)
	require.Len(t, tpl.Levels, 2)
	assert.Equal(t, "u-manager", tpl.Levels[0].ApproverUserID)

	_, err = e.chains.CreateChainTemplate(ctx, service.CreateTemplateInput{
		EntityType: repository.EntityTypeQuotation,
		Name:       "Second",
		Active:     true,
		Levels:     []service.LevelInput{{LevelOrder: 1, LevelName: "Manager", ApproverUserID: "u-manager"}},
	})
	assert.Equal(t, apperrors.ErrCodeBusiness, apperrors.Code(err))

	updated, err := e.chains.UpdateChainLevels(ctx, e.template.ID, []service.LevelInput{
		{LevelOrder: 1, LevelName: "Director", ApproverUserID: "u-director"},
	})
	require.NoError(t, err)
	require.Len(t, updated.Levels, 1)
}

func TestPostgresConcurrentLevelReplacement(t *testing.T) {
	e := newPGEngine(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			levels := []service.LevelInput{{LevelOrder: 1, LevelName: "Manager", ApproverUserID: "u-manager"}}
			if i%2 == 1 {
				levels = append(levels, service.LevelInput{LevelOrder: 2, LevelName: "Director", ApproverUserID: "u-director"})
			}
			<-start
			_, errs[i] = e.chains.UpdateChainLevels(ctx, e.template.ID, levels)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	tpl, err := e.chains.GetChainTemplate(ctx, e.template.ID)
	require.NoError(t, err)
	require.NotEmpty(t, tpl.Levels)
	for i, l := range tpl.Levels {
		assert.Equal(t, i+1, l.LevelOrder)
	}
}

func TestPostgresConcurrentFinalApproval(t *testing.T) {
	e := newPGEngine(t)
	ctx := context.Background()

	e.pg.Exec(t, `INSERT INTO quotations (id, status) VALUES ('Q-race', 'PENDING_APPROVAL')`)
	req := e.submit(t, "Q-race")
	_, err := e.approvals.Approve(ctx, req.ID, "u-manager", "")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.approvals.Approve(ctx, req.ID, "u-director", "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.Equal(t, apperrors.ErrCodeBusiness, apperrors.Code(err))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)

	history, err := e.approvals.GetApprovalHistory(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	final, err := e.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, final.Status)
	assert.Equal(t, 3, final.Version)
}
