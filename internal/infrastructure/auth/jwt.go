// Package auth resolves bearer tokens into principals. Token issuance belongs
// to the identity service; Issue exists for local tooling and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// TokenResolver turns an access token into the caller's identity.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (shared.Principal, error)
}

// Claims is the access token payload: the subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

var _ TokenResolver = (*JWTResolver)(nil)

// Option configures a JWTResolver.
type Option func(*JWTResolver)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) Option {
	return func(r *JWTResolver) { r.issuer = issuer }
}

// WithLeeway tolerates clock skew on exp/nbf/iat.
func WithLeeway(d time.Duration) Option {
	return func(r *JWTResolver) { r.leeway = d }
}

// WithClock overrides the time source used for validation.
func WithClock(now func() time.Time) Option {
	return func(r *JWTResolver) { r.now = now }
}

// NewJWTResolver creates a resolver. An empty secret is rejected.
func NewJWTResolver(secret string, opts ...Option) (*JWTResolver, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	r := &JWTResolver{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve implements TokenResolver. Any failure maps to shared.ErrInvalidToken.
func (r *JWTResolver) Resolve(_ context.Context, token string) (shared.Principal, error) {
	if token == "" {
		return shared.Principal{}, shared.ErrInvalidToken
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(r.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, parserOpts...)
	if err != nil || !parsed.Valid {
		return shared.Principal{}, shared.WrapError("auth", "Resolve", shared.ErrInvalidToken, "invalid or expired token", err)
	}

	userID, err := shared.NewUserID(claims.Subject)
	if err != nil {
		return shared.Principal{}, shared.WrapError("auth", "Resolve", shared.ErrInvalidToken, "token subject is not a user id", err)
	}

	role := shared.Role(claims.Role)
	if claims.Role == "" {
		role = shared.RoleMentee
	}
	if !role.IsValid() {
		return shared.Principal{}, shared.WrapError("auth", "Resolve", shared.ErrInvalidToken, fmt.Sprintf("unknown role %q", claims.Role), nil)
	}

	return shared.Principal{UserID: userID, Role: role}, nil
}

// Issue signs a token for userID valid for ttl.
func (r *JWTResolver) Issue(userID shared.UserID, role shared.Role, ttl time.Duration) (string, error) {
	now := r.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
