package purchaseclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
)

// MsgInitiateFailed is shown when the API accepts the request but returns
// no payment page.
const MsgInitiateFailed = "Erreur lors de l'initiation du paiement"

// ErrNoPaymentURL means the gateway answered without a usable payment page.
var ErrNoPaymentURL = &apiclient.APIError{Status: http.StatusOK, Message: MsgInitiateFailed}

// Initiation is the gateway hand-off returned when checkout starts.
type Initiation struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
}

// Client calls the /purchases endpoints of the API.
type Client struct {
	conn *apiclient.Conn
}

// NewClient binds the purchase endpoints to a connection.
func NewClient(conn *apiclient.Conn) *Client {
	return &Client{conn: conn}
}

// Initiate creates a pending purchase for bookID and returns where the
// buyer pays.
func (c *Client) Initiate(ctx context.Context, bookID string, customer domain.CustomerInfo) (Initiation, error) {
	var out Initiation
	path := "/purchases/" + url.PathEscape(bookID)
	if err := c.conn.JSON(ctx, http.MethodPost, path, "/purchases/:bookId", customer, &out); err != nil {
		return Initiation{}, err
	}
	out.PaymentURL = strings.TrimSpace(out.PaymentURL)
	if !webURL(out.PaymentURL) {
		return Initiation{}, ErrNoPaymentURL
	}
	return out, nil
}

// webURL reports whether raw is an absolute http(s) link the browser can be
// sent to.
func webURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Verify asks the API to re-check the gateway for a transaction.
func (c *Client) Verify(ctx context.Context, transactionID string) (domain.Purchase, error) {
	var purchase domain.Purchase
	path := "/purchases/verify/" + url.PathEscape(transactionID)
	if err := c.conn.JSON(ctx, http.MethodPost, path, "/purchases/verify/:transactionId", nil, &purchase); err != nil {
		return domain.Purchase{}, err
	}
	return purchase, nil
}

func (c *Client) Get(ctx context.Context, transactionID string) (domain.Purchase, error) {
	var purchase domain.Purchase
	path := "/purchases/" + url.PathEscape(transactionID)
	if err := c.conn.JSON(ctx, http.MethodGet, path, "/purchases/:transactionId", nil, &purchase); err != nil {
		return domain.Purchase{}, err
	}
	return purchase, nil
}

func (c *Client) History(ctx context.Context) ([]domain.Purchase, error) {
	var purchases []domain.Purchase
	if err := c.conn.JSON(ctx, http.MethodGet, "/purchases/history", "", nil, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}
