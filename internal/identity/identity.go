// Package identity is the external identity provider: user accounts and
// session tokens. spec.md §3 leaves authentication itself outside the
// core's domain and names only the User/Session shapes it depends on;
// this package is the reference provider the facade wires by default,
// grounded on the teacher's auth-adjacent patterns (bcrypt password
// hashing, uuid-keyed tokens) and SPEC_FULL.md's recovered sliding-TTL
// behavior from session/service.py.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/spacenote/spacenote/internal/apperr"
	"github.com/spacenote/spacenote/internal/docstore"
	"github.com/spacenote/spacenote/internal/domain"
)

// Provider is the identity contract the rest of the system depends on.
// internal/access's SessionStore/UserGetter interfaces are each a strict
// subset of this, declared separately there to avoid importing this
// package from access.
type Provider interface {
	CreateUser(ctx context.Context, username, password string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.Session, error)
	GetSession(ctx context.Context, token string) (*domain.Session, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	Touch(ctx context.Context, token string) error
	Logout(ctx context.Context, token string) error
}

type Service struct {
	store docstore.Store
	now   func() time.Time
}

func New(store docstore.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) SetNow(now func() time.Time) { s.now = now }

func userFilter(username string) docstore.Predicate {
	return docstore.Eq{Field: "Username", Value: username}
}

func sessionFilter(token string) docstore.Predicate {
	return docstore.Eq{Field: "AuthToken", Value: token}
}

// CreateUser rejects a duplicate username; password hashing uses bcrypt at
// its default cost, matching the teacher's own credential handling.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" {
		return nil, apperr.Validationf("username must not be empty")
	}
	var existing domain.User
	found, err := s.store.FindOne(ctx, docstore.CollUsers, docstore.Query{Filter: userFilter(username)}, &existing)
	if err != nil {
		return nil, apperr.Internalf(err, "check existing user")
	}
	if found {
		return nil, apperr.Validationf("username %q already exists", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internalf(err, "hash password")
	}
	user := &domain.User{Username: username, PasswordHash: string(hash), CreatedAt: s.now()}
	if err := s.store.InsertOne(ctx, docstore.CollUsers, user); err != nil {
		return nil, apperr.Internalf(err, "insert user")
	}
	return user, nil
}

// Authenticate verifies the password and issues a new session. Wrong
// username and wrong password fail identically to avoid leaking which
// usernames exist.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*domain.Session, error) {
	var user domain.User
	found, err := s.store.FindOne(ctx, docstore.CollUsers, docstore.Query{Filter: userFilter(username)}, &user)
	if err != nil {
		return nil, apperr.Internalf(err, "find user")
	}
	if !found {
		return nil, apperr.AuthFailuref("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.AuthFailuref("invalid credentials")
	}
	session := &domain.Session{AuthToken: uuid.NewString(), Username: username, CreatedAt: s.now()}
	if err := s.store.InsertOne(ctx, docstore.CollSessions, session); err != nil {
		return nil, apperr.Internalf(err, "insert session")
	}
	return session, nil
}

// GetSession resolves token to its session, failing NotFound if absent or
// expired. Expiry is evaluated against CreatedAt plus domain.SessionTTL
// rather than a separate ExpiresAt column, since Touch slides CreatedAt
// itself forward on every successful use.
func (s *Service) GetSession(ctx context.Context, token string) (*domain.Session, error) {
	var session domain.Session
	found, err := s.store.FindOne(ctx, docstore.CollSessions, docstore.Query{Filter: sessionFilter(token)}, &session)
	if err != nil {
		return nil, apperr.Internalf(err, "find session")
	}
	if !found {
		return nil, apperr.NotFoundf("session")
	}
	if s.now().Sub(session.CreatedAt) > domain.SessionTTL {
		return nil, apperr.NotFoundf("session expired")
	}
	return &session, nil
}

func (s *Service) GetUser(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	found, err := s.store.FindOne(ctx, docstore.CollUsers, docstore.Query{Filter: userFilter(username)}, &user)
	if err != nil {
		return nil, apperr.Internalf(err, "find user")
	}
	if !found {
		return nil, apperr.NotFoundf("user %q", username)
	}
	return &user, nil
}

// Touch is the sliding-TTL refresh: each successful authenticated call
// resets the session's CreatedAt to now, matching session/service.py's
// extend-on-use behavior rather than a fixed absolute expiry.
func (s *Service) Touch(ctx context.Context, token string) error {
	plan := docstore.NewPlan().Set("CreatedAt", s.now())
	matched, err := s.store.UpdateOne(ctx, docstore.CollSessions, sessionFilter(token), plan)
	if err != nil {
		return apperr.Internalf(err, "touch session")
	}
	if !matched {
		return apperr.NotFoundf("session")
	}
	return nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	deleted, err := s.store.DeleteOne(ctx, docstore.CollSessions, sessionFilter(token))
	if err != nil {
		return apperr.Internalf(err, "delete session")
	}
	if !deleted {
		return apperr.NotFoundf("session")
	}
	return nil
}
