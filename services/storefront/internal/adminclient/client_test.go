package adminclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
)

type slot struct{ token string }

func (s *slot) Token(context.Context) (string, error) { return s.token, nil }
func (s *slot) SetToken(_ context.Context, v string) error {
	s.token = v
	return nil
}
func (s *slot) ClearToken(context.Context) error {
	s.token = ""
	return nil
}

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *slot) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s := &slot{token: "admin-token"}
	return NewClient(apiclient.New(apiclient.Config{BaseURL: srv.URL}).With(s, nil)), s
}

func TestCreateUserKeepsAdminToken(t *testing.T) {
	var body NewUser
	client, s := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"success":true,"token":"new-user-token","user":{"_id":"u9","email":"n@b.com","role":"user"}}`)
	})

	user, err := client.CreateUser(context.Background(), NewUser{
		FirstName: "N", LastName: "U", Email: " n@b.com ", Password: "temp42", Role: domain.RoleUser, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "u9", user.ID)
	assert.Equal(t, "admin-token", s.token)
	assert.Equal(t, "temp42", body.Password)
	assert.Equal(t, "n@b.com", body.Email)
}

func TestNewUserValidate(t *testing.T) {
	problems := NewUser{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "12345", Role: domain.RoleUser}.Validate()
	assert.Equal(t, []string{"Le mot de passe temporaire doit contenir au moins 6 caractères"}, problems)
	assert.Empty(t, NewUser{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "123456", Role: domain.RoleAdmin}.Validate())
	assert.Len(t, NewUser{}.Validate(), 5)
}

func TestUsersAsksForAllRows(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `{"success":true,"data":[{"_id":"u1"},{"_id":"u2"}]}`)
	})
	users, err := client.Users(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestSettingsDropsStorageKeysAndRejectsUnknown(t *testing.T) {
	body := `{"success":true,"data":{"_id":"s1","__v":0,"updatedAt":"2025-01-01","siteName":"Shop","sections":{"booksSection":false,"contactSection":true,"heroSection":true}}}`
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})
	s, err := client.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Shop", s.SiteName)
	assert.False(t, s.Sections.Books)
	assert.Equal(t, "XOF", s.Currency)

	body = `{"success":true,"data":{"siteName":"Shop","theme":"dark"}}`
	_, err = client.Settings(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "theme")
}

func TestSettingsWithoutDataIsDefaults(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true}`)
	})
	s, err := client.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), s)
}

func TestSaveSettingsValidatesBeforeSending(t *testing.T) {
	var calls int
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.WriteString(w, `{"success":true,"data":{"siteName":"Saved"}}`)
	})
	bad := domain.DefaultSettings()
	bad.TaxRate = 150
	_, err := client.SaveSettings(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, 0, calls)

	saved, err := client.SaveSettings(context.Background(), domain.DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "Saved", saved.SiteName)
	assert.Equal(t, 1, calls)
}

func TestReplyReturnsEcho(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/messages/m1/reply", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Merci", body["content"])
		_, _ = io.WriteString(w, `{"success":true,"data":{"_id":"m1","isRead":true,"response":"Merci"}}`)
	})
	msg, err := client.Reply(context.Background(), "m1", "Merci")
	require.NoError(t, err)
	assert.Equal(t, "Merci", msg.Response)
	assert.True(t, msg.IsRead)
}
