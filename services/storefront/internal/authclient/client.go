package authclient

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
)

// Client calls the /auth endpoints of the API.
type Client struct {
	conn *apiclient.Conn
}

// Result is the identity and bearer token returned by login and register.
type Result struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

// ProfileInput is the editable part of the current user's profile.
type ProfileInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

var errMissingToken = errors.New("auth response carried no token")

// NewClient binds the auth endpoints to a connection.
func NewClient(conn *apiclient.Conn) *Client {
	return &Client{conn: conn}
}

// Login exchanges credentials for a token. The call never carries the
// current token, and a 401 is reported as bad credentials.
func (c *Client) Login(ctx context.Context, email, password string) (Result, error) {
	payload := map[string]string{"email": strings.TrimSpace(email), "password": password}
	return c.issue(ctx, "/auth/login", payload)
}

// Register creates a "user" account and returns its token.
func (c *Client) Register(ctx context.Context, in RegisterInput) (Result, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Role == "" {
		in.Role = string(domain.RoleUser)
	}
	return c.issue(ctx, "/auth/register", in)
}

func (c *Client) issue(ctx context.Context, path string, payload any) (Result, error) {
	var res Result
	err := c.conn.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      path,
		Body:      payload,
		Anonymous: true,
	}, &res)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(res.Token) == "" {
		return Result{}, errMissingToken
	}
	return res, nil
}

func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var user domain.User
	if err := c.conn.JSON(ctx, http.MethodGet, "/auth/me", "", nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in ProfileInput) (domain.User, error) {
	var user domain.User
	if err := c.conn.JSON(ctx, http.MethodPut, "/auth/profile", "", in, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	payload := map[string]string{
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	}
	return c.conn.JSON(ctx, http.MethodPut, "/auth/change-password", "", payload, nil)
}
