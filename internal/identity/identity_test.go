package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/docstore"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc := New(docstore.NewMock())
	svc.SetNow(func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) })
	return svc
}

func TestCreateUserHashesPassword(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	user, err := svc.CreateUser(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.NotEqual(t, "hunter2", user.PasswordHash)
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, "alice", "different")
	require.Error(t, err)
	require.Equal(t, apperr.ValidationFailure, apperr.KindOf(err))
}

func TestAuthenticateSucceedsWithCorrectPassword(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)

	session, err := svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", session.Username)
	require.NotEmpty(t, session.AuthToken)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.Error(t, err)
	require.Equal(t, apperr.AuthenticationFailure, apperr.KindOf(err))
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	_, err := svc.Authenticate(context.Background(), "ghost", "anything")
	require.Error(t, err)
	require.Equal(t, apperr.AuthenticationFailure, apperr.KindOf(err))
}

func TestGetSessionReturnsIssuedSession(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)
	session, err := svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, session.AuthToken)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
}

func TestGetSessionRejectsExpired(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)
	session, err := svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)

	svc.SetNow(func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).Add(31 * 24 * time.Hour) })
	_, err = svc.GetSession(ctx, session.AuthToken)
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestTouchSlidesSessionForward(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)
	session, err := svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)

	almostExpired := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).Add(29 * 24 * time.Hour)
	svc.SetNow(func() time.Time { return almostExpired })
	require.NoError(t, svc.Touch(ctx, session.AuthToken))

	svc.SetNow(func() time.Time { return almostExpired.Add(29 * 24 * time.Hour) })
	_, err = svc.GetSession(ctx, session.AuthToken)
	require.NoError(t, err)
}

func TestLogoutRemovesSession(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, "alice", "hunter2")
	require.NoError(t, err)
	session, err := svc.Authenticate(ctx, "alice", "hunter2")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.AuthToken))
	_, err = svc.GetSession(ctx, session.AuthToken)
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestLogoutReturnsNotFoundForUnknownToken(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	err := svc.Logout(context.Background(), "bogus")
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestGetUserReturnsNotFoundForUnknownUsername(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	_, err := svc.GetUser(context.Background(), "ghost")
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
