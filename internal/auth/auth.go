// Package auth verifies bearer tokens and carries the authenticated user
// through request contexts.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-erp-approvals/internal/errors"
)

// UserContext is the authenticated caller.
type UserContext struct {
	UserID   string
	Username string
	Roles    []string
}

type userContextKey struct{}

// WithUser returns a copy of ctx carrying uc.
func WithUser(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, uc)
}

// GetUserContext returns the authenticated user stored in ctx.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(userContextKey{}).(*UserContext)
	if !ok || uc == nil || uc.UserID == "" {
		return nil, errors.Unauthorized("no authenticated user in context")
	}
	return uc, nil
}

// Claims is the token payload issued by the ERP identity service.
type Claims struct {
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier creates a Verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses and validates a raw token. The subject claim becomes the
// user id.
func (v *Verifier) Verify(raw string) (*UserContext, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, errors.Unauthorized(fmt.Sprintf("invalid token: %v", err))
	}
	if claims.Subject == "" {
		return nil, errors.Unauthorized("invalid token: missing subject")
	}
	return &UserContext{
		UserID:   claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}

// VerifyHeader verifies an Authorization header value of the form
// "Bearer <token>".
func (v *Verifier) VerifyHeader(header string) (*UserContext, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, errors.Unauthorized("missing bearer token")
	}
	return v.Verify(strings.TrimSpace(token))
}

// Issue signs a token for userID. Used by tooling and tests that need to
// call the API.
func (v *Verifier) Issue(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
