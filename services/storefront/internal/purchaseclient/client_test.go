package purchaseclient

import (
	"context"
	"encoding/json"
	"errors"
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
func (s *slot) SetToken(_ context.Context, v string) error { s.token = v; return nil }
func (s *slot) ClearToken(context.Context) error { s.token = ""; return nil }

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(apiclient.New(apiclient.Config{BaseURL: srv.URL}).With(&slot{token: "tok"}, nil))
}

func TestInitiateSendsCustomerBlock(t *testing.T) {
	var got map[string]string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/purchases/b1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"data":{"transaction_id":"tx-9","payment_url":"https://pay.test/tx-9"}}`)
	})

	out, err := client.Initiate(context.Background(), "b1", domain.CustomerInfo{Name: "Awa", PhoneNumber: "+225", ZipCode: "00000"})
	require.NoError(t, err)
	assert.Equal(t, "tx-9", out.TransactionID)
	assert.Equal(t, "https://pay.test/tx-9", out.PaymentURL)
	assert.Equal(t, "Awa", got["name"])
	assert.Equal(t, "+225", got["phone_number"])
	assert.Equal(t, "00000", got["zip_code"])
}

func TestInitiateWithoutPaymentURLFails(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{"transaction_id":"tx-9"}}`)
	})
	_, err := client.Initiate(context.Background(), "b1", domain.CustomerInfo{})
	require.Error(t, err)
	assert.Equal(t, MsgInitiateFailed, apiclient.Message(err))
}

func TestInitiateRejectsNonWebPaymentURL(t *testing.T) {
	for _, link := range []string{"javascript:alert(1)", "/relative/tx-9", "ftp://pay.test/tx-9", "https://"} {
		t.Run(link, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeData(w, map[string]string{"transaction_id": "tx-9", "payment_url": link})
			})
			_, err := client.Initiate(context.Background(), "b1", domain.CustomerInfo{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoPaymentURL))
			assert.Equal(t, MsgInitiateFailed, apiclient.Message(err))
		})
	}
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func TestInitiateKeepsServerMessage(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"message":"Solde insuffisant"}`)
	})
	_, err := client.Initiate(context.Background(), "b1", domain.CustomerInfo{})
	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Solde insuffisant", apiErr.Message)
}

func TestVerifyAndHistory(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/purchases/verify/tx-9":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = io.WriteString(w, `{"success":true,"data":{"_id":"p1","book_id":"b1","status":"completed","transaction_id":"tx-9"}}`)
		case "/purchases/history":
			_, _ = io.WriteString(w, `{"success":true,"data":[{"_id":"p1","status":"pending","book":{"_id":"b1","title":"Guide"}}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	purchase, err := client.Verify(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseCompleted, purchase.Status)
	assert.True(t, purchase.Status.Terminal())

	history, err := client.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Guide", history[0].Book.Title)
	assert.False(t, history[0].Status.Terminal())
}
