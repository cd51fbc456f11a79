package messageclient

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
)

// Input is a contact form submission.
type Input struct {
	From    string `json:"from"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Validate lists the problems to show before sending.
func (in Input) Validate() []string {
	var problems []string
	if strings.TrimSpace(in.From) == "" {
		problems = append(problems, "Le nom est requis")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		problems = append(problems, "Email invalide")
	}
	if strings.TrimSpace(in.Subject) == "" {
		problems = append(problems, "Le sujet est requis")
	}
	if strings.TrimSpace(in.Content) == "" {
		problems = append(problems, "Le message est requis")
	}
	return problems
}

// Client calls the /messages endpoints of the API.
type Client struct {
	conn *apiclient.Conn
}

func NewClient(conn *apiclient.Conn) *Client {
	return &Client{conn: conn}
}

// Send posts a contact message; visitors and users alike.
func (c *Client) Send(ctx context.Context, in Input) (domain.Message, error) {
	in.From = strings.TrimSpace(in.From)
	in.Email = strings.TrimSpace(in.Email)
	in.Subject = strings.TrimSpace(in.Subject)
	var msg domain.Message
	if err := c.conn.JSON(ctx, http.MethodPost, "/messages", "", in, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Mine lists the messages sent by the current user with their replies.
func (c *Client) Mine(ctx context.Context) ([]domain.Message, error) {
	var msgs []domain.Message
	if err := c.conn.JSON(ctx, http.MethodGet, "/messages/user", "", nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
