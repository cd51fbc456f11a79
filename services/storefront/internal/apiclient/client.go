package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxBodyBytes = 64 << 20

// TokenStore is the persisted slot holding the bearer token of one browser.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Observer receives one observation per outbound call.
type Observer interface {
	ObserveAPICall(method, route string, status int, elapsed time.Duration)
}

// Config configures the shared API client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Observer   Observer
}

// Client calls the storefront REST API over HTTP. It is safe for concurrent
// use; bind it to a browser's token slot with With.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   Observer
}

// New constructs the shared API client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		observer:   cfg.Observer,
	}
}

// With binds the client to one token slot. onUnauthorized runs after the
// slot has been cleared following a 401; it may be nil.
func (c *Client) With(tokens TokenStore, onUnauthorized func(context.Context)) *Conn {
	return &Conn{client: c, tokens: tokens, onUnauthorized: onUnauthorized}
}

// Conn is a Client bound to a single browser session.
type Conn struct {
	client         *Client
	tokens         TokenStore
	onUnauthorized func(context.Context)
}

// File is a multipart file part.
type File struct {
	Field    string
	Filename string
	Body     io.Reader
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	// Route is the metrics label; defaults to Path.
	Route string
	Query url.Values
	// Body is JSON-encoded unless Form or Files are set.
	Body  any
	Form  map[string]string
	Files []File
	// Anonymous requests never carry the token and a 401 on them is an
	// ordinary APIError (e.g. bad credentials on login).
	Anonymous bool
	// Data decodes the "data" member of the response when present.
	Data bool
}

// Do performs the request and decodes a successful response into out
// (which may be nil).
func (c *Conn) Do(ctx context.Context, req Request, out any) error {
	body, _, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}
	return decode(body, req.Data, out)
}

// JSON is a shortcut for an authenticated JSON call decoding "data".
func (c *Conn) JSON(ctx context.Context, method, path, route string, payload, out any) error {
	return c.Do(ctx, Request{Method: method, Path: path, Route: route, Body: payload, Data: true}, out)
}

// Payload is a raw response body.
type Payload struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Fetch performs the request and returns the raw body without decoding.
func (c *Conn) Fetch(ctx context.Context, req Request) (Payload, error) {
	body, resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filenameFrom(resp.Header.Get("Content-Disposition")),
		Body:        body,
	}, nil
}

func (c *Conn) roundTrip(ctx context.Context, req Request) ([]byte, *http.Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	route := req.Route
	if route == "" {
		route = req.Path
	}
	start := time.Now()
	resp, err := c.client.httpClient.Do(httpReq)
	if err != nil {
		c.observe(req.Method, route, 0, start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		slog.WarnContext(ctx, "api request failed", "method", req.Method, "route", route, "err", err)
		return nil, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	c.observe(req.Method, route, resp.StatusCode, start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Anonymous {
		c.expire(ctx, route)
		return nil, nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		apiErr := parseError(resp.StatusCode, body)
		slog.InfoContext(ctx, "api error response", "method", req.Method, "route", route, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, nil, apiErr
	}
	if rejected := envelopeFailure(resp.StatusCode, body); rejected != nil {
		return nil, nil, rejected
	}
	return body, resp, nil
}

func (c *Conn) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	target := c.client.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case len(req.Files) > 0 || req.Form != nil:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		for k, v := range req.Form {
			if err := writer.WriteField(k, v); err != nil {
				return nil, err
			}
		}
		for _, f := range req.Files {
			part, err := writer.CreateFormFile(f.Field, f.Filename)
			if err != nil {
				return nil, err
			}
			if _, err := io.Copy(part, f.Body); err != nil {
				return nil, err
			}
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}
		body = buf
		contentType = writer.FormDataContentType()
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if !req.Anonymous && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		if strings.TrimSpace(token) != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

// expire clears the slot and signals the caller to go to the login page.
func (c *Conn) expire(ctx context.Context, route string) {
	if c.tokens != nil {
		if err := c.tokens.ClearToken(ctx); err != nil {
			slog.ErrorContext(ctx, "clear token after 401", "route", route, "err", err)
		}
	}
	slog.InfoContext(ctx, "session expired", "route", route)
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}

func (c *Conn) observe(method, route string, status int, start time.Time) {
	if c.client.observer == nil {
		return
	}
	c.client.observer.ObserveAPICall(method, route, status, time.Since(start))
}

func decode(body []byte, data bool, out any) error {
	if out == nil {
		return nil
	}
	raw := body
	if data {
		if inner := gjson.GetBytes(body, "data"); inner.Exists() {
			raw = []byte(inner.Raw)
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("decode response: empty body")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func filenameFrom(disposition string) string {
	if disposition == "" {
		return ""
	}
	for _, part := range strings.Split(disposition, ";") {
		part = strings.TrimSpace(part)
		if name, ok := strings.CutPrefix(part, "filename="); ok {
			return strings.Trim(name, `"`)
		}
	}
	return ""
}
