package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTokens struct {
	mu    sync.Mutex
	token string
}

func (m *memTokens) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memTokens) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *memTokens) ClearToken(context.Context) error {
	return m.SetToken(context.Background(), "")
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveAPICall(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, method+" "+route+" "+http.StatusText(status))
}

func TestBearerTokenAttachedOnlyWhenHeld(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()

	tokens := &memTokens{}
	conn := New(Config{BaseURL: srv.URL}).With(tokens, nil)
	ctx := context.Background()

	var out []any
	require.NoError(t, conn.JSON(ctx, http.MethodGet, "/books", "", nil, &out))
	require.NoError(t, tokens.SetToken(ctx, "tok-1"))
	require.NoError(t, conn.JSON(ctx, http.MethodGet, "/books", "", nil, &out))
	require.NoError(t, conn.Do(ctx, Request{Method: http.MethodPost, Path: "/auth/login", Anonymous: true}, nil))

	assert.Equal(t, []string{"", "Bearer tok-1", ""}, seen)
}

func TestUnauthorizedClearsTokenAndSignalsLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Token invalide"}`)
	}))
	defer srv.Close()

	for _, path := range []string{"/auth/me", "/books", "/admin/stats", "/purchases/history"} {
		t.Run(path, func(t *testing.T) {
			tokens := &memTokens{token: "stale"}
			var redirected int32
			conn := New(Config{BaseURL: srv.URL}).With(tokens, func(context.Context) {
				atomic.AddInt32(&redirected, 1)
			})

			err := conn.JSON(context.Background(), http.MethodGet, path, "", nil, nil)
			require.ErrorIs(t, err, ErrUnauthorized)
			assert.Empty(t, tokens.token)
			assert.Equal(t, int32(1), atomic.LoadInt32(&redirected))
			assert.Equal(t, MsgSessionExpired, Message(err))
		})
	}
}

func TestAnonymousUnauthorizedIsPlainAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"success":false,"message":"Identifiants invalides"}`)
	}))
	defer srv.Close()

	tokens := &memTokens{token: "keep"}
	conn := New(Config{BaseURL: srv.URL}).With(tokens, func(context.Context) {
		t.Fatal("anonymous 401 must not force a logout")
	})
	err := conn.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Anonymous: true}, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Identifiants invalides", apiErr.Message)
	assert.Equal(t, "keep", tokens.token)
}

func TestServerMessagesAndFieldErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantFields []string
	}{
		{name: "message", status: 400, body: `{"message":"Livre introuvable"}`, wantMsg: "Livre introuvable"},
		{name: "error string", status: 409, body: `{"error":"Email déjà utilisé"}`, wantMsg: "Email déjà utilisé"},
		{name: "no message falls back", status: 500, body: `oops`, wantMsg: MsgGeneric},
		{
			name:       "errors object",
			status:     422,
			body:       `{"errors":{"email":"Email invalide","password":"Trop court"}}`,
			wantMsg:    MsgValidation,
			wantFields: []string{"Email invalide", "Trop court"},
		},
		{
			name:       "errors array",
			status:     400,
			body:       `{"message":"Validation","errors":[{"path":"lastName","msg":"Nom requis"},{"param":"firstName","msg":"Prénom requis"}]}`,
			wantMsg:    "Validation",
			wantFields: []string{"Prénom requis", "Nom requis"},
		},
		{
			name:       "mongoose validation error",
			status:     400,
			body:       `{"error":{"name":"ValidationError","errors":{"email":{"message":"Email requis"}}}}`,
			wantMsg:    MsgValidation,
			wantFields: []string{"Email requis"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			conn := New(Config{BaseURL: srv.URL}).With(&memTokens{}, nil)
			err := conn.JSON(context.Background(), http.MethodPost, "/x", "", map[string]string{"a": "b"}, nil)
			require.Error(t, err)
			assert.Equal(t, tc.wantMsg, Message(err))
			assert.Equal(t, tc.wantFields, FieldMessages(err))
		})
	}
}

func TestSuccessFalseEnvelopeIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"message":"Solde insuffisant"}`)
	}))
	defer srv.Close()

	conn := New(Config{BaseURL: srv.URL}).With(&memTokens{}, nil)
	var out map[string]any
	err := conn.JSON(context.Background(), http.MethodPost, "/purchases/b1", "", map[string]string{}, &out)
	require.Error(t, err)
	assert.Equal(t, "Solde insuffisant", Message(err))
}

func TestTransportErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	conn := New(Config{BaseURL: url, Timeout: time.Second}).With(&memTokens{}, nil)
	err := conn.JSON(context.Background(), http.MethodGet, "/books", "", nil, nil)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, MsgUnreachable, Message(err))
}

func TestNoRetryOnServerError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	conn := New(Config{BaseURL: srv.URL}).With(&memTokens{}, nil)
	require.Error(t, conn.JSON(context.Background(), http.MethodGet, "/books", "", nil, nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDecodeDataOrBareBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wrapped" {
			_, _ = io.WriteString(w, `{"success":true,"data":["a","b"]}`)
			return
		}
		_, _ = io.WriteString(w, `["c"]`)
	}))
	defer srv.Close()

	conn := New(Config{BaseURL: srv.URL}).With(&memTokens{}, nil)
	var wrapped, bare []string
	require.NoError(t, conn.JSON(context.Background(), http.MethodGet, "/wrapped", "", nil, &wrapped))
	require.NoError(t, conn.JSON(context.Background(), http.MethodGet, "/bare", "", nil, &bare))
	assert.Equal(t, []string{"a", "b"}, wrapped)
	assert.Equal(t, []string{"c"}, bare)
}

func TestMultipartRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Titre", r.FormValue("title"))
		f, hdr, err := r.FormFile("pdfFile")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "book.pdf", hdr.Filename)
		assert.Equal(t, "%PDF", string(data))
		_, _ = io.WriteString(w, `{"success":true,"data":{}}`)
	}))
	defer srv.Close()

	conn := New(Config{BaseURL: srv.URL}).With(&memTokens{}, nil)
	err := conn.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/books",
		Form:   map[string]string{"title": "Titre"},
		Files:  []File{{Field: "pdfFile", Filename: "book.pdf", Body: strings.NewReader("%PDF")}},
		Data:   true,
	}, nil)
	require.NoError(t, err)
}

func TestFetchReturnsRawBodyAndFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="livre.pdf"`)
		_, _ = io.WriteString(w, "%PDF-1.4")
	}))
	defer srv.Close()

	conn := New(Config{BaseURL: srv.URL}).With(&memTokens{}, nil)
	payload, err := conn.Fetch(context.Background(), Request{Method: http.MethodGet, Path: "/books/b1/download"})
	require.NoError(t, err)
	assert.Equal(t, "livre.pdf", payload.Filename)
	assert.Equal(t, "application/pdf", payload.ContentType)
	assert.Equal(t, "%PDF-1.4", string(payload.Body))
}

func TestObserverSeesRouteLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	conn := New(Config{BaseURL: srv.URL, Observer: obs}).With(&memTokens{}, nil)
	require.NoError(t, conn.JSON(context.Background(), http.MethodGet, "/books/42", "/books/:id", nil, nil))
	assert.Equal(t, []string{"GET /books/:id OK"}, obs.calls)
}
