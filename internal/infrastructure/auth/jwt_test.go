package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, opts ...Option) *JWTResolver {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	r, err := NewJWTResolver("test-secret", opts...)
	require.NoError(t, err)
	return r
}

func TestJWTResolver_RoundTrip(t *testing.T) {
	r := newResolver(t, WithIssuer("mentorhub"))

	token, err := r.Issue("alice", shared.RoleMentor, time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, shared.UserID("alice"), p.UserID)
	assert.Equal(t, shared.RoleMentor, p.Role)
}

func TestJWTResolver_DefaultsRoleToMentee(t *testing.T) {
	r := newResolver(t)
	token, err := r.Issue("bob", "", time.Hour)
	require.NoError(t, err)

	p, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, shared.RoleMentee, p.Role)
}

func TestJWTResolver_Rejects(t *testing.T) {
	r := newResolver(t, WithIssuer("mentorhub"))
	ctx := context.Background()

	expired, err := r.Issue("alice", shared.RoleMentee, -time.Minute)
	require.NoError(t, err)

	other, err := NewJWTResolver("other-secret", WithClock(func() time.Time { return fixedNow }), WithIssuer("mentorhub"))
	require.NoError(t, err)
	forged, err := other.Issue("alice", shared.RoleAdmin, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := newResolver(t, WithIssuer("elsewhere")).Issue("alice", shared.RoleMentee, time.Hour)
	require.NoError(t, err)

	badSubject, err := r.Issue("not a user!", shared.RoleMentee, time.Hour)
	require.NoError(t, err)

	badRole, err := r.Issue("alice", shared.Role("root"), time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "mentorhub"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"expired":      expired,
		"forged":       forged,
		"wrong issuer": wrongIssuer,
		"bad subject":  badSubject,
		"bad role":     badRole,
		"no expiry":    noExp,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(ctx, token)
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrInvalidToken)
			assert.True(t, shared.IsUnauthorized(err))
		})
	}
}

func TestNewJWTResolver_RequiresSecret(t *testing.T) {
	_, err := NewJWTResolver("")
	assert.Error(t, err)
}
