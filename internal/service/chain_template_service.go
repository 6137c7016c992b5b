package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pesio-ai/be-erp-approvals/internal/errors"
	"github.com/pesio-ai/be-erp-approvals/internal/logger"
	"github.com/pesio-ai/be-erp-approvals/internal/repository"
)

// ChainTemplateService manages the approval chains administrators configure
// per entity type. Edits never touch requests already in flight; those carry
// their own snapshot of the levels.
type ChainTemplateService struct {
	tx        Transactor
	templates ChainTemplateStore
	users     UserDirectory
	log       *logger.Logger
	now       func() time.Time
}

// NewChainTemplateService creates a new ChainTemplateService.
func NewChainTemplateService(tx Transactor, templates ChainTemplateStore, users UserDirectory, log *logger.Logger) *ChainTemplateService {
	return &ChainTemplateService{
		tx:        tx,
		templates: templates,
		users:     users,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// LevelInput is one submitted chain level.
type LevelInput struct {
	LevelOrder     int    `json:"levelOrder"`
	LevelName      string `json:"levelName"`
	ApproverUserID string `json:"approverUserId"`
	Required       bool   `json:"required"`
}

// CreateTemplateInput describes a new chain template.
type CreateTemplateInput struct {
	EntityType  repository.EntityType `json:"entityType"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Active      bool                  `json:"active"`
	Levels      []LevelInput          `json:"levels"`
}

// ListChainTemplates returns every template.
func (s *ChainTemplateService) ListChainTemplates(ctx context.Context) ([]*repository.ChainTemplate, error) {
	return s.templates.List(ctx)
}

// GetChainTemplate returns a template with its ordered levels.
func (s *ChainTemplateService) GetChainTemplate(ctx context.Context, id string) (*repository.ChainTemplate, error) {
	return s.templates.GetByID(ctx, id)
}

// CreateChainTemplate validates and stores a new template.
func (s *ChainTemplateService) CreateChainTemplate(ctx context.Context, in CreateTemplateInput) (*repository.ChainTemplate, error) {
	if strings.TrimSpace(string(in.EntityType)) == "" {
		return nil, errors.InvalidInput("entityType", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.InvalidInput("name", "is required")
	}
	levels, err := validateLevels(in.Levels)
	if err != nil {
		return nil, err
	}

	t := &repository.ChainTemplate{
		EntityType:  repository.EntityType(strings.ToUpper(strings.TrimSpace(string(in.EntityType)))),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Active:      in.Active,
		Levels:      levels,
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.checkApprovers(ctx, levels); err != nil {
			return err
		}
		return s.templates.Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("template_id", t.ID).
		Str("entity_type", string(t.EntityType)).
		Int("levels", len(t.Levels)).
		Msg("Chain template created")
	return t, nil
}

// UpdateChainLevels replaces a template's levels. Level orders must be
// exactly 1..N and every approver must exist; otherwise nothing changes.
func (s *ChainTemplateService) UpdateChainLevels(ctx context.Context, templateID string, in []LevelInput) (*repository.ChainTemplate, error) {
	levels, err := validateLevels(in)
	if err != nil {
		return nil, err
	}

	var updated *repository.ChainTemplate
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.templates.GetByID(ctx, templateID); err != nil {
			return err
		}
		if err := s.checkApprovers(ctx, levels); err != nil {
			return err
		}
		if err := s.templates.ReplaceLevels(ctx, templateID, levels, s.now()); err != nil {
			return err
		}
		updated, err = s.templates.GetByID(ctx, templateID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("template_id", templateID).
		Int("levels", len(levels)).
		Msg("Chain template levels replaced")
	return updated, nil
}

// SetChainTemplateActive activates or deactivates a template. At most one
// template per entity type may be active.
func (s *ChainTemplateService) SetChainTemplateActive(ctx context.Context, id string, active bool) (*repository.ChainTemplate, error) {
	var updated *repository.ChainTemplate
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.templates.SetActive(ctx, id, active, s.now()); err != nil {
			return err
		}
		var err error
		updated, err = s.templates.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("template_id", id).Bool("active", active).Msg("Chain template activation changed")
	return updated, nil
}

func (s *ChainTemplateService) checkApprovers(ctx context.Context, levels []*repository.ChainLevel) error {
	for _, l := range levels {
		if _, err := s.users.GetByID(ctx, l.ApproverUserID); err != nil {
			return err
		}
	}
	return nil
}

// validateLevels checks that level orders form exactly 1..N and returns the
// levels sorted by order.
func validateLevels(in []LevelInput) ([]*repository.ChainLevel, error) {
	if len(in) == 0 {
		return nil, errors.Business("a chain template needs at least one approval level")
	}

	levels := make([]*repository.ChainLevel, len(in))
	for i, l := range in {
		levels[i] = &repository.ChainLevel{
			LevelOrder:     l.LevelOrder,
			LevelName:      strings.TrimSpace(l.LevelName),
			ApproverUserID: strings.TrimSpace(l.ApproverUserID),
			Required:       l.Required,
		}
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].LevelOrder < levels[j].LevelOrder
	})

	for i, l := range levels {
		if l.LevelOrder != i+1 {
			orders := make([]int, len(levels))
			for j, lv := range levels {
				orders[j] = lv.LevelOrder
			}
			return nil, errors.Business("level orders must be sequential starting at 1, got %v", orders)
		}
	}
	return levels, nil
}
