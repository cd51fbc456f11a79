package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/authclient"
)

type fakeTokens struct {
	token   string
	cleared int
}

func (f *fakeTokens) Token(context.Context) (string, error) { return f.token, nil }

func (f *fakeTokens) SetToken(_ context.Context, token string) error {
	f.token = token
	return nil
}

func (f *fakeTokens) ClearToken(context.Context) error {
	f.token = ""
	f.cleared++
	return nil
}

type fakeAuth struct {
	meCalls int
	me      domain.User
	meErr   error
	result  authclient.Result
	err     error
	profile domain.User
}

func (f *fakeAuth) Login(context.Context, string, string) (authclient.Result, error) {
	return f.result, f.err
}

func (f *fakeAuth) Register(context.Context, authclient.RegisterInput) (authclient.Result, error) {
	return f.result, f.err
}

func (f *fakeAuth) Me(context.Context) (domain.User, error) {
	f.meCalls++
	return f.me, f.meErr
}

func (f *fakeAuth) UpdateProfile(context.Context, authclient.ProfileInput) (domain.User, error) {
	return f.profile, f.err
}

func (f *fakeAuth) ChangePassword(context.Context, string, string) error {
	return f.err
}

func TestNewWithoutTokenMakesNoCall(t *testing.T) {
	auth := &fakeAuth{}
	s := New(context.Background(), auth, &fakeTokens{})
	assert.Equal(t, 0, auth.meCalls)
	assert.False(t, s.Authenticated())
}

func TestNewRestoresFromToken(t *testing.T) {
	auth := &fakeAuth{me: domain.User{ID: "u1", FirstName: "A", Role: domain.RoleAdmin}}
	s := New(context.Background(), auth, &fakeTokens{token: "tok"})
	assert.Equal(t, 1, auth.meCalls)
	user, ok := s.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, s.IsAdmin())
}

func TestNewClearsTokenOnlyWhenRejected(t *testing.T) {
	auth := &fakeAuth{meErr: apiclient.ErrUnauthorized}
	tokens := &fakeTokens{token: "tok"}
	s := New(context.Background(), auth, tokens)
	assert.Equal(t, 1, auth.meCalls)
	assert.False(t, s.Authenticated())
	assert.Empty(t, tokens.token)
	assert.NoError(t, s.RestoreErr())
}

func TestNewKeepsTokenWhenRestoreFails(t *testing.T) {
	for name, meErr := range map[string]error{
		"transport": &apiclient.TransportError{Err: errors.New("refused")},
		"server":    &apiclient.APIError{Status: 500, Message: "boom"},
	} {
		t.Run(name, func(t *testing.T) {
			auth := &fakeAuth{meErr: meErr}
			tokens := &fakeTokens{token: "tok"}
			s := New(context.Background(), auth, tokens)
			assert.Equal(t, 1, auth.meCalls)
			assert.False(t, s.Authenticated())
			assert.Equal(t, "tok", tokens.token)
			assert.Zero(t, tokens.cleared)
			assert.ErrorIs(t, s.RestoreErr(), meErr)
		})
	}
}

func TestLoginReplacesUserAndPersistsToken(t *testing.T) {
	auth := &fakeAuth{result: authclient.Result{Token: "t2", User: domain.User{ID: "u2"}}}
	tokens := &fakeTokens{}
	s := New(context.Background(), auth, tokens)

	user, err := s.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, "t2", tokens.token)

	auth.result = authclient.Result{Token: "t3", User: domain.User{ID: "u3"}}
	_, err = s.Login(context.Background(), "c@d.com", "pw")
	require.NoError(t, err)
	current, _ := s.CurrentUser()
	assert.Equal(t, "u3", current.ID)
	assert.Equal(t, "t3", tokens.token)
}

func TestLoginFailurePropagates(t *testing.T) {
	want := &apiclient.APIError{Status: 401, Message: "Identifiants invalides"}
	auth := &fakeAuth{err: want}
	tokens := &fakeTokens{}
	s := New(context.Background(), auth, tokens)

	_, err := s.Login(context.Background(), "a@b.com", "bad")
	assert.Same(t, want, err)
	assert.False(t, s.Authenticated())
	assert.Empty(t, tokens.token)
}

func TestLogoutIsLocal(t *testing.T) {
	auth := &fakeAuth{me: domain.User{ID: "u1"}}
	tokens := &fakeTokens{token: "tok"}
	s := New(context.Background(), auth, tokens)
	require.True(t, s.Authenticated())

	require.NoError(t, s.Logout(context.Background()))
	assert.False(t, s.Authenticated())
	assert.Empty(t, tokens.token)
	assert.Equal(t, 1, auth.meCalls)
}

func TestUpdateProfileAdoptsEcho(t *testing.T) {
	auth := &fakeAuth{me: domain.User{ID: "u1", FirstName: "Old"}, profile: domain.User{ID: "u1", FirstName: "New"}}
	s := New(context.Background(), auth, &fakeTokens{token: "tok"})

	_, err := s.UpdateProfile(context.Background(), authclient.ProfileInput{FirstName: "New"})
	require.NoError(t, err)
	user, _ := s.CurrentUser()
	assert.Equal(t, "New", user.FirstName)
}

func TestContextRoundTrip(t *testing.T) {
	s := New(context.Background(), &fakeAuth{}, &fakeTokens{})
	ctx := NewContext(context.Background(), s)
	assert.Same(t, s, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
	var nilSession *Session
	assert.False(t, nilSession.Authenticated())
}
