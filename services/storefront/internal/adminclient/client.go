package adminclient

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
	"bookzone/services/storefront/internal/bookclient"
)

// MinPasswordLength is the shortest temporary password an admin may set.
const MinPasswordLength = 6

// Client calls the /admin endpoints of the API.
type Client struct {
	conn  *apiclient.Conn
	books *bookclient.Client
}

// NewClient binds the admin endpoints to a connection.
func NewClient(conn *apiclient.Conn) *Client {
	return &Client{conn: conn, books: bookclient.NewClient(conn)}
}

// NewUser is the back-office "add user" form. Password is the temporary
// credential the admin hands over to the new user.
type NewUser struct {
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	Role      domain.UserRole `json:"role"`
	IsActive  bool            `json:"isActive"`
}

// Validate lists the problems to show before any request.
func (u NewUser) Validate() []string {
	var problems []string
	if strings.TrimSpace(u.FirstName) == "" {
		problems = append(problems, "Le prénom est requis")
	}
	if strings.TrimSpace(u.LastName) == "" {
		problems = append(problems, "Le nom est requis")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(u.Email)); err != nil {
		problems = append(problems, "Email invalide")
	}
	if len(u.Password) < MinPasswordLength {
		problems = append(problems, "Le mot de passe temporaire doit contenir au moins 6 caractères")
	}
	if u.Role != domain.RoleUser && u.Role != domain.RoleAdmin {
		problems = append(problems, "Rôle invalide")
	}
	return problems
}

// UserPatch carries the fields an admin may edit on an existing user.
type UserPatch struct {
	FirstName string          `json:"firstName,omitempty"`
	LastName  string          `json:"lastName,omitempty"`
	Email     string          `json:"email,omitempty"`
	Role      domain.UserRole `json:"role,omitempty"`
}

var errNoUserEcho = errors.New("create user response carried no user")

func userPath(id string) string {
	return "/admin/users/" + url.PathEscape(id)
}

func adminBookPath(id string) string {
	return "/admin/books/" + url.PathEscape(id)
}

func messagePath(id string) string {
	return "/admin/messages/" + url.PathEscape(id)
}

func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	if err := c.conn.JSON(ctx, http.MethodGet, "/admin/stats", "", nil, &stats); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := c.conn.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/admin/users",
		Query:  url.Values{"limit": {"1000"}},
		Data:   true,
	}, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser registers an account on behalf of the admin. The token issued
// for the new account is discarded; the admin's own session is untouched.
func (c *Client) CreateUser(ctx context.Context, in NewUser) (domain.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	var res struct {
		User domain.User `json:"user"`
		Data domain.User `json:"data"`
	}
	if err := c.conn.Do(ctx, apiclient.Request{Method: http.MethodPost, Path: "/auth/register", Route: "/admin/auth/register", Body: in}, &res); err != nil {
		return domain.User{}, err
	}
	switch {
	case res.User.ID != "":
		return res.User, nil
	case res.Data.ID != "":
		return res.Data, nil
	}
	return domain.User{}, errNoUserEcho
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch UserPatch) (domain.User, error) {
	var user domain.User
	if err := c.conn.JSON(ctx, http.MethodPut, userPath(id), "/admin/users/:id", patch, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.conn.JSON(ctx, http.MethodDelete, userPath(id), "/admin/users/:id", nil, nil)
}

func (c *Client) ToggleUserStatus(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	if err := c.conn.JSON(ctx, http.MethodPut, userPath(id)+"/toggle-status", "/admin/users/:id/toggle-status", nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) Books(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.conn.JSON(ctx, http.MethodGet, "/admin/books", "", nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// CreateBook uploads a new book through the public books endpoint.
func (c *Client) CreateBook(ctx context.Context, in bookclient.Input) (domain.Book, error) {
	return c.books.Create(ctx, in)
}

// UpdateBook replaces metadata and, when provided, the cover or PDF.
func (c *Client) UpdateBook(ctx context.Context, id string, in bookclient.Input) (domain.Book, error) {
	var book domain.Book
	err := c.conn.Do(ctx, apiclient.Request{
		Method: http.MethodPut,
		Path:   adminBookPath(id),
		Route:  "/admin/books/:id",
		Form:   in.Fields(),
		Files:  in.Files(),
		Data:   true,
	}, &book)
	if err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.books.Delete(ctx, id)
}

func (c *Client) ToggleBookStatus(ctx context.Context, id string) (domain.Book, error) {
	var book domain.Book
	if err := c.conn.JSON(ctx, http.MethodPut, adminBookPath(id)+"/toggle-status", "/admin/books/:id/toggle-status", nil, &book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (c *Client) Messages(ctx context.Context) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.conn.JSON(ctx, http.MethodGet, "/admin/messages", "", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead returns the server's copy of the message. The API may answer
// without one, in which case the zero Message is returned.
func (c *Client) MarkRead(ctx context.Context, id string) (domain.Message, error) {
	return c.messageCall(ctx, http.MethodPut, messagePath(id)+"/read", "/admin/messages/:id/read", nil)
}

func (c *Client) Reply(ctx context.Context, id, content string) (domain.Message, error) {
	payload := map[string]string{"content": content}
	return c.messageCall(ctx, http.MethodPost, messagePath(id)+"/reply", "/admin/messages/:id/reply", payload)
}

func (c *Client) ToggleRead(ctx context.Context, id string) (domain.Message, error) {
	return c.messageCall(ctx, http.MethodPut, messagePath(id)+"/toggle-read", "/admin/messages/:id/toggle-read", nil)
}

func (c *Client) messageCall(ctx context.Context, method, path, route string, payload any) (domain.Message, error) {
	var msg domain.Message
	err := c.conn.Do(ctx, apiclient.Request{Method: method, Path: path, Route: route, Body: payload, Data: true}, &msg)
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Settings decodes the stored settings on top of the defaults; unknown
// keys are rejected.
func (c *Client) Settings(ctx context.Context) (domain.Settings, error) {
	payload, err := c.conn.Fetch(ctx, apiclient.Request{Method: http.MethodGet, Path: "/admin/settings"})
	if err != nil {
		return domain.Settings{}, err
	}
	doc, err := settingsDocument(payload.Body)
	if err != nil {
		return domain.Settings{}, err
	}
	return domain.DecodeSettingsJSON(doc)
}

func (c *Client) SaveSettings(ctx context.Context, s domain.Settings) (domain.Settings, error) {
	if err := s.Validate(); err != nil {
		return domain.Settings{}, err
	}
	payload, err := c.conn.Fetch(ctx, apiclient.Request{Method: http.MethodPut, Path: "/admin/settings", Body: s})
	if err != nil {
		return domain.Settings{}, err
	}
	saved, err := settingsDocument(payload.Body)
	if err != nil {
		return domain.Settings{}, err
	}
	if len(saved) == 0 {
		return s, nil
	}
	return domain.DecodeSettingsJSON(saved)
}
