package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pesio-ai/be-erp-approvals/internal/errors"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "erp-identity")

	token, err := v.Issue("u-manager", "manager", time.Hour)
	require.NoError(t, err)

	uc, err := v.VerifyHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "u-manager", uc.UserID)
	assert.Equal(t, "manager", uc.Username)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewVerifier("secret", "erp-identity")

	expired, err := v.Issue("u-1", "", -time.Hour)
	require.NoError(t, err)

	otherKey, err := NewVerifier("other", "erp-identity").Issue("u-1", "", time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := NewVerifier("secret", "somebody-else").Issue("u-1", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "erp-identity",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u-1",
		Issuer:  "erp-identity",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "empty header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong key", header: "Bearer " + otherKey},
		{name: "wrong issuer", header: "Bearer " + wrongIssuer},
		{name: "no subject", header: "Bearer " + noSubject},
		{name: "no expiry", header: "Bearer " + noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.VerifyHeader(tt.header)
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.Code(err))
		})
	}
}

func TestUserContext(t *testing.T) {
	_, err := GetUserContext(context.Background())
	assert.Equal(t, apperrors.ErrCodeUnauthorized, apperrors.Code(err))

	ctx := WithUser(context.Background(), &UserContext{UserID: "u-1"})
	uc, err := GetUserContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", uc.UserID)
}
