package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/logging"
	"github.com/example/campus-dispatch/internal/mail"
	"github.com/example/campus-dispatch/internal/storage"
)

// recordingCodes exposes the last code set so tests can verify
// without reading mail.
type recordingCodes struct {
	*MemoryCodes
	mu   sync.Mutex
	last string
}

func (r *recordingCodes) Set(ctx context.Context, email, code string, ttl time.Duration) error {
	r.mu.Lock()
	r.last = code
	r.mu.Unlock()
	return r.MemoryCodes.Set(ctx, email, code, ttl)
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStore, *recordingCodes) {
	t.Helper()
	store := storage.NewMemoryStore()
	codes := &recordingCodes{MemoryCodes: NewMemoryCodes()}
	tokens := NewTokenManager("test-secret", time.Hour)
	svc := NewService(store, tokens, codes, mail.NopMailer{}, 10*time.Minute, logging.NewLogger("error"))
	return svc, store, codes
}

func TestRegisterLoginVerifyFlow(t *testing.T) {
	svc, store, codes := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice@campus.test", "Alice", "correct horse")
	require.NoError(t, err)
	require.False(t, u.Verified)
	require.False(t, u.AssigneeEligible)

	token, logged, err := svc.Login(ctx, "alice@campus.test", "correct horse")
	require.NoError(t, err)
	require.Equal(t, u.ID, logged.ID)

	got, err := svc.tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, u.ID, got)

	require.NoError(t, svc.VerifyEmail(ctx, "alice@campus.test", codes.last))
	verified, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, verified.Verified)
	require.True(t, verified.AssigneeEligible)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "not-an-email", "Alice", "longenough")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Register(ctx, "alice@campus.test", "", "longenough")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Register(ctx, "alice@campus.test", "Alice", "short")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@campus.test", "Alice", "longenough")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice@campus.test", "Alice Again", "longenough")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestLoginBadCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice@campus.test", "Alice", "longenough")
	require.NoError(t, err)

	// unknown account and wrong password are indistinguishable
	_, _, err = svc.Login(ctx, "nobody@campus.test", "longenough")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, _, err = svc.Login(ctx, "alice@campus.test", "wrong password")
	require.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestVerifyEmailRejectsBadCode(t *testing.T) {
	svc, store, codes := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "alice@campus.test", "Alice", "longenough")
	require.NoError(t, err)

	err = svc.VerifyEmail(ctx, "alice@campus.test", "000000")
	require.ErrorIs(t, err, apperr.ErrValidation)

	// the right code still works after a failed guess
	require.NoError(t, svc.VerifyEmail(ctx, "alice@campus.test", codes.last))
	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.Verified)
}
