package repository

import (
	"context"

	"github.com/pesio-ai/be-erp-approvals/internal/database"
)

// UserRepository reads the ERP users table. The approval engine only needs
// to know whether a user exists and is active.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the user or a "User" NotFound error naming the id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`SELECT id, username, active FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Active)
	if err != nil {
		return nil, lookupError(err, "User", id, "failed to get user")
	}
	return u, nil
}
