package repository

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-erp-approvals/internal/errors"
)

const (
	pgUniqueViolation    = "23505"
	pgInvalidTextRepr    = "22P02"
	pgSerializationError = "40001"
	pgDeadlockDetected   = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// lookupError maps a single-row lookup failure. Missing rows and ids that are
// not valid UUIDs both mean the entity does not exist.
func lookupError(err error, kind, id, msg string) error {
	if stderrors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr {
		return errors.NotFound(kind, id)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, msg)
}

// writeError maps a failed write. Lock conflicts become business errors so
// the losing caller sees a stale-state failure rather than a 500.
func writeError(err error, msg string) error {
	switch pgCode(err) {
	case pgSerializationError, pgDeadlockDetected:
		return errors.Business("%s: concurrent update, reload and retry", msg)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, msg)
}
