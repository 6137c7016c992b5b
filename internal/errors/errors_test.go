package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("approval_request", "42"), http.StatusNotFound},
		{"business", Business("approval request is already %s", "APPROVED"), http.StatusBadRequest},
		{"invalid input", InvalidInput("page", "must be positive"), http.StatusBadRequest},
		{"access denied", AccessDenied("not your turn"), http.StatusForbidden},
		{"unauthorized", Unauthorized("missing token"), http.StatusUnauthorized},
		{"foreign error", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"wrapped app error", fmt.Errorf("outer: %w", NotFound("User", "u-1")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestNotFoundMessageNamesKindAndID(t *testing.T) {
	err := NotFound("chain template", "QUOTATION")
	assert.Equal(t, "chain template not found: QUOTATION", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeInternal, "failed to load approval request")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeInternal, Code(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("ctx: %w", AccessDenied("nope"))

	assert.True(t, Is(err, ErrCodeAccessDenied))
	assert.False(t, Is(err, ErrCodeBusiness))
	assert.False(t, Is(nil, ErrCodeBusiness))
	assert.True(t, stderrors.Is(err, &AppError{Code: ErrCodeAccessDenied}))
}
