package access

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

type fakeSessions struct {
	sessions map[string]*domain.Session
	touched  []string
}

func newFakeSessions() *fakeSessions { return &fakeSessions{sessions: map[string]*domain.Session{}} }

func (f *fakeSessions) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	s, ok := f.sessions[token]
	if !ok {
		return nil, apperr.NotFoundf("session")
	}
	return s, nil
}

func (f *fakeSessions) Touch(ctx context.Context, token string) error {
	f.touched = append(f.touched, token)
	return nil
}

type fakeUsers struct{ users map[string]*domain.User }

func newFakeUsers() *fakeUsers { return &fakeUsers{users: map[string]*domain.User{}} }

func (f *fakeUsers) GetUser(ctx context.Context, username string) (*domain.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, apperr.NotFoundf("user")
	}
	return u, nil
}

type fakeSpaces struct{ spaces map[string]*domain.Space }

func newFakeSpaces() *fakeSpaces { return &fakeSpaces{spaces: map[string]*domain.Space{}} }

func (f *fakeSpaces) Get(ctx context.Context, slug string) (*domain.Space, error) {
	s, ok := f.spaces[slug]
	if !ok {
		return nil, apperr.NotFoundf("space %s", slug)
	}
	return s, nil
}

type fakeComments struct{ comments map[string]*domain.Comment }

func newFakeComments() *fakeComments { return &fakeComments{comments: map[string]*domain.Comment{}} }

func commentKey(spaceSlug string, noteNumber, number int64) string {
	return fmt.Sprintf("%s/%d/%d", spaceSlug, noteNumber, number)
}

func (f *fakeComments) Get(ctx context.Context, spaceSlug string, noteNumber, number int64) (*domain.Comment, error) {
	c, ok := f.comments[commentKey(spaceSlug, noteNumber, number)]
	if !ok {
		return nil, apperr.NotFoundf("comment")
	}
	return c, nil
}

type fakePending struct{ byNumber map[int64]*domain.PendingAttachment }

func newFakePending() *fakePending { return &fakePending{byNumber: map[int64]*domain.PendingAttachment{}} }

func (f *fakePending) GetPending(ctx context.Context, number int64) (*domain.PendingAttachment, error) {
	p, ok := f.byNumber[number]
	if !ok {
		return nil, apperr.NotFoundf("pending attachment")
	}
	return p, nil
}

type fixture struct {
	sessions *fakeSessions
	users    *fakeUsers
	spaces   *fakeSpaces
	comments *fakeComments
	pending  *fakePending
	guard    *Guard
}

func newFixture() *fixture {
	f := &fixture{
		sessions: newFakeSessions(),
		users:    newFakeUsers(),
		spaces:   newFakeSpaces(),
		comments: newFakeComments(),
		pending:  newFakePending(),
	}
	f.guard = New(f.sessions, f.users, f.spaces, f.comments, f.pending)
	return f
}

func (f *fixture) addUser(username string) {
	f.users.users[username] = &domain.User{Username: username}
	f.sessions.sessions["tok-"+username] = &domain.Session{AuthToken: "tok-" + username, Username: username}
}

func TestEnsureAuthenticatedSucceedsAndTouchesSession(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("alice")

	user, err := f.guard.EnsureAuthenticated(context.Background(), "tok-alice")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Contains(t, f.sessions.touched, "tok-alice")
}

func TestEnsureAuthenticatedRejectsUnknownToken(t *testing.T) {
	t.Parallel()
	f := newFixture()
	_, err := f.guard.EnsureAuthenticated(context.Background(), "bogus")
	require.Error(t, err)
	require.Equal(t, apperr.AuthenticationFailure, apperr.KindOf(err))
}

func TestEnsureAdminRejectsNonAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("alice")

	_, err := f.guard.EnsureAdmin(context.Background(), "tok-alice")
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEnsureAdminAcceptsAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("admin")

	user, err := f.guard.EnsureAdmin(context.Background(), "tok-admin")
	require.NoError(t, err)
	require.Equal(t, "admin", user.Username)
}

func TestEnsureSpaceMemberRejectsNonMember(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("carol")
	f.spaces.spaces["secret"] = &domain.Space{Slug: "secret", Members: []string{"bob"}}

	_, err := f.guard.EnsureSpaceMember(context.Background(), "tok-carol", "secret")
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEnsureSpaceMemberAcceptsMember(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("bob")
	f.spaces.spaces["secret"] = &domain.Space{Slug: "secret", Members: []string{"bob"}}

	user, err := f.guard.EnsureSpaceMember(context.Background(), "tok-bob", "secret")
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)
}

func TestEnsureSpaceMemberDoesNotBypassForAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("admin")
	f.spaces.spaces["secret"] = &domain.Space{Slug: "secret", Members: []string{"bob"}}

	_, err := f.guard.EnsureSpaceMember(context.Background(), "tok-admin", "secret")
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEnsureSpaceReaderAllowsAdminRegardlessOfMembership(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("admin")
	f.spaces.spaces["secret"] = &domain.Space{Slug: "secret", Members: []string{"bob"}}

	user, err := f.guard.EnsureSpaceReader(context.Background(), "tok-admin", "secret")
	require.NoError(t, err)
	require.Equal(t, "admin", user.Username)
}

func TestEnsureSpaceReaderRejectsNonMemberNonAdmin(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("carol")
	f.spaces.spaces["secret"] = &domain.Space{Slug: "secret", Members: []string{"bob"}}

	_, err := f.guard.EnsureSpaceReader(context.Background(), "tok-carol", "secret")
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEnsureCommentAuthorRejectsNonAuthor(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("carol")
	f.comments.comments[commentKey("proj", 1, 1)] = &domain.Comment{SpaceSlug: "proj", NoteNumber: 1, Number: 1, Author: "bob"}

	_, _, err := f.guard.EnsureCommentAuthor(context.Background(), "tok-carol", "proj", 1, 1)
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEnsureCommentAuthorAcceptsAuthor(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("bob")
	f.comments.comments[commentKey("proj", 1, 1)] = &domain.Comment{SpaceSlug: "proj", NoteNumber: 1, Number: 1, Author: "bob"}

	user, comment, err := f.guard.EnsureCommentAuthor(context.Background(), "tok-bob", "proj", 1, 1)
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)
	require.Equal(t, int64(1), comment.Number)
}

func TestEnsurePendingAttachmentOwnerRejectsNonOwner(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("carol")
	f.pending.byNumber[7] = &domain.PendingAttachment{Number: 7, Author: "bob"}

	_, _, err := f.guard.EnsurePendingAttachmentOwner(context.Background(), "tok-carol", 7)
	require.Error(t, err)
	require.Equal(t, apperr.AccessDenied, apperr.KindOf(err))
}

func TestEnsurePendingAttachmentOwnerAcceptsOwner(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("bob")
	f.pending.byNumber[7] = &domain.PendingAttachment{Number: 7, Author: "bob"}

	user, p, err := f.guard.EnsurePendingAttachmentOwner(context.Background(), "tok-bob", 7)
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)
	require.Equal(t, int64(7), p.Number)
}

func TestEnsureSpaceMemberPropagatesSpaceNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.addUser("alice")

	_, err := f.guard.EnsureSpaceMember(context.Background(), "tok-alice", "missing")
	require.Error(t, err)
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
