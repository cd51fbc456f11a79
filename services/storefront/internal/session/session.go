package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/authclient"
)

// AuthService is the part of the auth API a session needs.
type AuthService interface {
	Login(ctx context.Context, email, password string) (authclient.Result, error)
	Register(ctx context.Context, in authclient.RegisterInput) (authclient.Result, error)
	Me(ctx context.Context) (domain.User, error)
	UpdateProfile(ctx context.Context, in authclient.ProfileInput) (domain.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
}

// Session is the identity of one browser: at most one user plus the
// token persisted in its slot.
type Session struct {
	auth   AuthService
	tokens apiclient.TokenStore

	mu         sync.RWMutex
	user       *domain.User
	restoreErr error
}

// New restores a session from the persisted token. When a token is held it
// issues exactly one profile fetch. A 401 clears the token and the session
// continues logged out; any other failure keeps the token and is reported
// by RestoreErr.
func New(ctx context.Context, auth AuthService, tokens apiclient.TokenStore) *Session {
	s := &Session{auth: auth, tokens: tokens}
	token, err := tokens.Token(ctx)
	if err != nil {
		slog.WarnContext(ctx, "read persisted token", "err", err)
		return s
	}
	if strings.TrimSpace(token) == "" {
		return s
	}
	user, err := auth.Me(ctx)
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		slog.InfoContext(ctx, "session restore rejected", "err", err)
		if clearErr := tokens.ClearToken(ctx); clearErr != nil {
			slog.WarnContext(ctx, "clear token after failed restore", "err", clearErr)
		}
		return s
	case err != nil:
		slog.WarnContext(ctx, "session restore failed", "err", err)
		s.restoreErr = err
		return s
	}
	s.user = &user
	return s
}

// CurrentUser returns the signed-in user, if any.
func (s *Session) CurrentUser() (domain.User, bool) {
	if s == nil {
		return domain.User{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// RestoreErr is the error that kept a persisted token from being restored,
// other than a 401. The token is still held.
func (s *Session) RestoreErr() error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restoreErr
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// IsAdmin reports whether the signed-in user has the admin role.
func (s *Session) IsAdmin() bool {
	user, ok := s.CurrentUser()
	return ok && user.IsAdmin()
}

// Login replaces the current user and persists the returned token.
func (s *Session) Login(ctx context.Context, email, password string) (domain.User, error) {
	res, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	return s.adopt(ctx, res)
}

// Register creates an account and signs it in.
func (s *Session) Register(ctx context.Context, in authclient.RegisterInput) (domain.User, error) {
	res, err := s.auth.Register(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	return s.adopt(ctx, res)
}

func (s *Session) adopt(ctx context.Context, res authclient.Result) (domain.User, error) {
	if err := s.tokens.SetToken(ctx, res.Token); err != nil {
		return domain.User{}, err
	}
	user := res.User
	s.mu.Lock()
	s.user = &user
	s.restoreErr = nil
	s.mu.Unlock()
	return user, nil
}

// Logout forgets the token and the user. It does not call the API.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	s.restoreErr = nil
	s.mu.Unlock()
	return s.tokens.ClearToken(ctx)
}

// Expire drops the user after the token slot was cleared elsewhere.
func (s *Session) Expire() {
	s.mu.Lock()
	s.user = nil
	s.restoreErr = nil
	s.mu.Unlock()
}

// UpdateProfile saves the profile and adopts the server's copy.
func (s *Session) UpdateProfile(ctx context.Context, in authclient.ProfileInput) (domain.User, error) {
	user, err := s.auth.UpdateProfile(ctx, in)
	if err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return user, nil
}

func (s *Session) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	return s.auth.ChangePassword(ctx, currentPassword, newPassword)
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by NewContext, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
