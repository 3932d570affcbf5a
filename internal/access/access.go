// Package access is C12, the access guard: every facade operation resolves
// its caller through exactly one of the ensure_* functions here before
// touching domain state (spec.md §4.8). Each failure mode maps to a
// distinct apperr.Kind; there is no partial authorization — a failure
// aborts the whole call.
package access

import (
	"context"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/domain"
)

// SessionStore is the subset of the identity provider's contract the guard
// needs: resolve a token to a session, and slide its TTL on successful use
// (session/service.py's sliding-TTL behavior, recovered in SPEC_FULL.md).
type SessionStore interface {
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	Touch(ctx context.Context, token string) error
}

// UserGetter resolves a session's username to its User record.
type UserGetter interface {
	GetUser(ctx context.Context, username string) (*domain.User, error)
}

// SpaceGetter is space.Service's Get method.
type SpaceGetter interface {
	Get(ctx context.Context, slug string) (*domain.Space, error)
}

// CommentGetter is comment.Service's Get method.
type CommentGetter interface {
	Get(ctx context.Context, spaceSlug string, noteNumber, number int64) (*domain.Comment, error)
}

// PendingAttachmentGetter is attachment.Service's GetPending method.
type PendingAttachmentGetter interface {
	GetPending(ctx context.Context, number int64) (*domain.PendingAttachment, error)
}

type Guard struct {
	sessions SessionStore
	users    UserGetter
	spaces   SpaceGetter
	comments CommentGetter
	pending  PendingAttachmentGetter
}

func New(sessions SessionStore, users UserGetter, spaces SpaceGetter, comments CommentGetter, pending PendingAttachmentGetter) *Guard {
	return &Guard{sessions: sessions, users: users, spaces: spaces, comments: comments, pending: pending}
}

// EnsureAuthenticated resolves token to its owning User. Any lookup failure
// — unknown token, expired session, or a session whose user has since been
// deleted — surfaces as AuthenticationFailure.
func (g *Guard) EnsureAuthenticated(ctx context.Context, token string) (*domain.User, error) {
	session, err := g.sessions.GetSession(ctx, token)
	if err != nil {
		return nil, apperr.AuthFailuref("invalid session")
	}
	user, err := g.users.GetUser(ctx, session.Username)
	if err != nil {
		return nil, apperr.AuthFailuref("invalid session")
	}
	if err := g.sessions.Touch(ctx, token); err != nil {
		return nil, apperr.Internalf(err, "touch session")
	}
	return user, nil
}

// EnsureAdmin requires the authenticated user to be the admin account.
func (g *Guard) EnsureAdmin(ctx context.Context, token string) (*domain.User, error) {
	user, err := g.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.Username != domain.AdminUsername {
		return nil, apperr.AccessDeniedf("admin required")
	}
	return user, nil
}

// EnsureSpaceMember requires the authenticated user to be a member of
// spaceSlug. Admin does not bypass this check — membership is its own
// grant (see EnsureSpaceReader for the admin-or-member variant).
func (g *Guard) EnsureSpaceMember(ctx context.Context, token, spaceSlug string) (*domain.User, error) {
	user, err := g.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, err
	}
	space, err := g.spaces.Get(ctx, spaceSlug)
	if err != nil {
		return nil, err
	}
	if !space.IsMember(user.Username) {
		return nil, apperr.AccessDeniedf("not a member of %s", spaceSlug)
	}
	return user, nil
}

// EnsureSpaceReader admits admin OR member.
func (g *Guard) EnsureSpaceReader(ctx context.Context, token, spaceSlug string) (*domain.User, error) {
	user, err := g.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.Username == domain.AdminUsername {
		return user, nil
	}
	space, err := g.spaces.Get(ctx, spaceSlug)
	if err != nil {
		return nil, err
	}
	if !space.IsMember(user.Username) {
		return nil, apperr.AccessDeniedf("not a reader of %s", spaceSlug)
	}
	return user, nil
}

// EnsureCommentAuthor requires authentication, the comment to exist, and
// the caller to be its author.
func (g *Guard) EnsureCommentAuthor(ctx context.Context, token, spaceSlug string, noteNumber, commentNumber int64) (*domain.User, *domain.Comment, error) {
	user, err := g.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	comment, err := g.comments.Get(ctx, spaceSlug, noteNumber, commentNumber)
	if err != nil {
		return nil, nil, err
	}
	if comment.Author != user.Username {
		return nil, nil, apperr.AccessDeniedf("not the author of comment %d", commentNumber)
	}
	return user, comment, nil
}

// EnsurePendingAttachmentOwner requires authentication, the pending
// attachment to exist, and the caller to be its uploader.
func (g *Guard) EnsurePendingAttachmentOwner(ctx context.Context, token string, number int64) (*domain.User, *domain.PendingAttachment, error) {
	user, err := g.EnsureAuthenticated(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	p, err := g.pending.GetPending(ctx, number)
	if err != nil {
		return nil, nil, err
	}
	if p.Author != user.Username {
		return nil, nil, apperr.AccessDeniedf("not the owner of pending attachment %d", number)
	}
	return user, p, nil
}
