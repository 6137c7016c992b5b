package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
	"github.com/pesio-ai/be-erp-approvals/internal/errors"
)

// ChainTemplateRepository handles approval_chain_templates and their levels.
// Level replacement must run inside a transaction (see database.DB.InTransaction).
type ChainTemplateRepository struct {
	db *database.DB
}

// NewChainTemplateRepository creates a new ChainTemplateRepository.
func NewChainTemplateRepository(db *database.DB) *ChainTemplateRepository {
	return &ChainTemplateRepository{db: db}
}

const templateColumns = `
	id, entity_type, name, description, active, created_at, updated_at
`

// List returns every template, any entity type, with levels loaded.
func (r *ChainTemplateRepository) List(ctx context.Context) ([]*ChainTemplate, error) {
	query := `SELECT ` + templateColumns + `
		FROM approval_chain_templates
		ORDER BY entity_type ASC, name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list chain templates")
	}
	defer rows.Close()

	var templates []*ChainTemplate
	byID := make(map[string]*ChainTemplate)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan chain template")
		}
		templates = append(templates, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list chain templates")
	}
	rows.Close()

	if len(templates) == 0 {
		return templates, nil
	}

	levelRows, err := r.db.Query(ctx, `
		SELECT id, template_id, level_order, level_name, approver_user_id, required
		FROM approval_chain_levels
		ORDER BY template_id, level_order ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list chain levels")
	}
	defer levelRows.Close()

	levels, err := scanLevels(levelRows)
	if err != nil {
		return nil, err
	}
	for _, l := range levels {
		if t, ok := byID[l.TemplateID]; ok {
			t.Levels = append(t.Levels, l)
		}
	}
	return templates, nil
}

// GetByID retrieves a template with its ordered levels.
func (r *ChainTemplateRepository) GetByID(ctx context.Context, id string) (*ChainTemplate, error) {
	query := `SELECT ` + templateColumns + `
		FROM approval_chain_templates
		WHERE id = $1
	`

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, lookupError(err, "chain template", id, "failed to get chain template")
	}
	if t.Levels, err = r.levels(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetActiveByEntityType returns the active template for an entity type with
// its levels eagerly loaded.
func (r *ChainTemplateRepository) GetActiveByEntityType(ctx context.Context, entityType EntityType) (*ChainTemplate, error) {
	query := `SELECT ` + templateColumns + `
		FROM approval_chain_templates
		WHERE entity_type = $1 AND active
	`

	t, err := scanTemplate(r.db.QueryRow(ctx, query, string(entityType)))
	if err != nil {
		return nil, lookupError(err, "chain template", string(entityType), "failed to get active chain template")
	}
	if t.Levels, err = r.levels(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a template and its levels. Call inside a transaction.
func (r *ChainTemplateRepository) Create(ctx context.Context, t *ChainTemplate) error {
	query := `
		INSERT INTO approval_chain_templates
		    (entity_type, name, description, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		string(t.EntityType),
		t.Name,
		t.Description,
		t.Active,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return errors.Business("an active template already exists for entity type %s", t.EntityType)
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create chain template")
	}

	return r.insertLevels(ctx, t.ID, t.Levels)
}

// ReplaceLevels deletes the template's levels, inserts the new ones and bumps
// updated_at. Call inside a transaction.
func (r *ChainTemplateRepository) ReplaceLevels(ctx context.Context, templateID string, levels []*ChainLevel, now time.Time) error {
	// Concurrent replacements of the same template serialize on this lock.
	var locked string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM approval_chain_templates WHERE id = $1 FOR UPDATE`, templateID,
	).Scan(&locked)
	if err != nil {
		return lookupError(err, "chain template", templateID, "failed to lock chain template")
	}

	if _, err := r.db.Exec(ctx, `DELETE FROM approval_chain_levels WHERE template_id = $1`, templateID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete chain levels")
	}
	if err := r.insertLevels(ctx, templateID, levels); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE approval_chain_templates SET updated_at = $2 WHERE id = $1`,
		templateID, now)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to save chain template")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("chain template", templateID)
	}
	return nil
}

// SetActive toggles the active flag.
func (r *ChainTemplateRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE approval_chain_templates SET active = $2, updated_at = $3 WHERE id = $1`,
		id, active, now)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return errors.Business("another active template already exists for this entity type")
		case pgInvalidTextRepr:
			return errors.NotFound("chain template", id)
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update chain template")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("chain template", id)
	}
	return nil
}

func (r *ChainTemplateRepository) insertLevels(ctx context.Context, templateID string, levels []*ChainLevel) error {
	query := `
		INSERT INTO approval_chain_levels
		    (template_id, level_order, level_name, approver_user_id, required)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for _, l := range levels {
		l.TemplateID = templateID
		err := r.db.QueryRow(ctx, query,
			templateID,
			l.LevelOrder,
			l.LevelName,
			l.ApproverUserID,
			l.Required,
		).Scan(&l.ID)
		if err != nil {
			if pgCode(err) == pgUniqueViolation {
				return errors.Business("chain template %s was modified concurrently", templateID)
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create chain level")
		}
	}
	return nil
}

func (r *ChainTemplateRepository) levels(ctx context.Context, templateID string) ([]*ChainLevel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, template_id, level_order, level_name, approver_user_id, required
		FROM approval_chain_levels
		WHERE template_id = $1
		ORDER BY level_order ASC
	`, templateID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get chain levels")
	}
	defer rows.Close()

	return scanLevels(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*ChainTemplate, error) {
	t := &ChainTemplate{}
	var entityType string
	err := row.Scan(
		&t.ID,
		&entityType,
		&t.Name,
		&t.Description,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.EntityType = EntityType(entityType)
	return t, nil
}

func scanLevels(rows pgx.Rows) ([]*ChainLevel, error) {
	var levels []*ChainLevel
	for rows.Next() {
		l := &ChainLevel{}
		if err := rows.Scan(
			&l.ID,
			&l.TemplateID,
			&l.LevelOrder,
			&l.LevelName,
			&l.ApproverUserID,
			&l.Required,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan chain level")
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read chain levels")
	}
	return levels, nil
}
