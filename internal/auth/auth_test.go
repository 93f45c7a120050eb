package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.DefaultCost)
	require.NoError(t, err)
	return New([]byte("test-signing-key"), HS256, 0, []UserRecord{
		{ID: 1, Username: "alice", PasswordHash: string(hash)},
	}, zap.NewNop())
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	a := newTestAuth(t)
	now := time.Now()
	tok, err := a.Issue(1, KindAuth, now, time.Minute)
	require.NoError(t, err)

	claims, err := a.Verify(tok, KindAuth, now.Add(time.Second))
	require.NoError(t, err)
	sub, err := claims.SubjectID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sub)
	assert.Equal(t, KindAuth, claims.Kind())
}

// Property 10 — expired token rejected.
func TestVerifyRejectsExpired(t *testing.T) {
	a := newTestAuth(t)
	now := time.Now()
	tok, err := a.Issue(1, KindAuth, now.Add(-time.Hour), time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(tok, KindAuth, now)
	assert.Error(t, err)
}

// Property 10 — not-yet-valid token rejected.
func TestVerifyRejectsNotYetValid(t *testing.T) {
	a := newTestAuth(t)
	future := time.Now().Add(time.Hour)
	tok, err := a.Issue(1, KindAuth, future, time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(tok, KindAuth, time.Now())
	assert.Error(t, err)
}

// Property 10 — wrong algorithm header rejected.
func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	a := newTestAuth(t)
	other := New([]byte("test-signing-key"), HS512, 0, nil, zap.NewNop())
	now := time.Now()
	tok, err := other.Issue(1, KindAuth, now, time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(tok, KindAuth, now)
	assert.Error(t, err)
}

// Property 10 — wrong kind (Refresh presented where Auth required) rejected.
func TestVerifyRejectsWrongKind(t *testing.T) {
	a := newTestAuth(t)
	now := time.Now()
	tok, err := a.Issue(1, KindRefresh, now, time.Minute)
	require.NoError(t, err)
	_, err = a.Verify(tok, KindAuth, now)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestLoginSuccess(t *testing.T) {
	a := newTestAuth(t)
	user, err := a.Login("alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), user.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	a := newTestAuth(t)
	_, err := a.Login("alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginUnknownUsername(t *testing.T) {
	a := newTestAuth(t)
	_, err := a.Login("bob", "whatever")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
