// Package client is a Go client for the agroguard REST API.
//
// Every request carries the session's bearer token. A 401 triggers exactly one
// token refresh followed by one retry; a second 401 is returned to the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agroguard/pkg/session"
	"agroguard/pkg/store"
)

// ErrNoSession is returned for authenticated calls made before Login.
var ErrNoSession = errors.New("client: not logged in")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to one API base URL on behalf of one user.
type Client struct {
	base *url.URL
	http *http.Client

	mu     sync.Mutex
	tokens session.TokenPair
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	session.TokenPair
	User store.User `json:"user"`
}

// Login opens a session and keeps its tokens for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (store.User, error) {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.send(ctx, http.MethodPost, "/v1/auth/login", body, &out, ""); err != nil {
		return store.User{}, err
	}
	c.setTokens(out.TokenPair)
	return out.User, nil
}

// Logout revokes the session on the server and forgets the tokens locally,
// even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setTokens(session.TokenPair{})
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", nil, nil)
}

// Tokens returns the current token pair.
func (c *Client) Tokens() session.TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

func (c *Client) setTokens(p session.TokenPair) {
	c.mu.Lock()
	c.tokens = p
	c.mu.Unlock()
}

func (c *Client) Me(ctx context.Context) (store.User, error) {
	var u store.User
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, &u)
	return u, err
}

func (c *Client) ListEquipment(ctx context.Context) ([]store.Equipment, error) {
	var out []store.Equipment
	err := c.do(ctx, http.MethodGet, "/v1/equipment", nil, &out)
	return out, err
}

func (c *Client) GetEquipment(ctx context.Context, id uuid.UUID) (store.Equipment, error) {
	var out store.Equipment
	err := c.do(ctx, http.MethodGet, "/v1/equipment/"+id.String(), nil, &out)
	return out, err
}

func (c *Client) ListReports(ctx context.Context) ([]store.Report, error) {
	var out []store.Report
	err := c.do(ctx, http.MethodGet, "/v1/reports", nil, &out)
	return out, err
}

func (c *Client) GetReport(ctx context.Context, id uuid.UUID) (store.Report, error) {
	var out store.Report
	err := c.do(ctx, http.MethodGet, "/v1/reports/"+id.String(), nil, &out)
	return out, err
}

// ListAlerts returns at most limit alerts; zero means no limit.
func (c *Client) ListAlerts(ctx context.Context, limit int) ([]store.Alert, error) {
	path := "/v1/alerts"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var out []store.Alert
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// do performs an authenticated call with the single refresh-and-retry.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	tokens := c.Tokens()
	if tokens.AccessToken == "" {
		return ErrNoSession
	}
	err := c.send(ctx, method, path, in, out, tokens.AccessToken)
	if !IsStatus(err, http.StatusUnauthorized) || tokens.RefreshToken == "" {
		return err
	}
	if refreshErr := c.refresh(ctx, tokens.RefreshToken); refreshErr != nil {
		return err
	}
	return c.send(ctx, method, path, in, out, c.Tokens().AccessToken)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) error {
	var pair session.TokenPair
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.send(ctx, http.MethodPost, "/v1/auth/refresh", body, &pair, ""); err != nil {
		return err
	}
	c.setTokens(pair)
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, in, out any, token string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Fields = payload.Fields
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
