// Package apiclient is a typed HTTP client for the gatekeeper REST API.
// gatectl is its main user.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 15 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. http://gatekeeper.local:8080.
	BaseURL string
	// Token is a bearer token from Login. Empty when the server runs
	// without JWT.
	Token   string
	Timeout time.Duration
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gatekeeper: HTTP %d", e.Status)
	}
	return fmt.Sprintf("gatekeeper: %s (%s, HTTP %d)", e.Message, e.Code, e.Status)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to one gatekeeper server.
type Client struct {
	http *resty.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	r := resty.New()
	r.SetBaseURL(base + "/api")
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "gatectl")
	if cfg.Token != "" {
		r.SetAuthToken(cfg.Token)
	}
	return &Client{http: r}, nil
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// do runs one request, decoding a success body into out (which may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any, query map[string]string) error {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("gatekeeper: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, _ := resp.Error().(*APIError)
		if apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Health is the /api/health answer.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Cameras       int    `json:"cameras"`
	Gates         int    `json:"gates"`
	WSClients     int    `json:"ws_clients"`
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h, nil)
	return h, err
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	Role        string    `json:"role"`
}

// Login exchanges operator credentials for a token and uses it for
// subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	var out struct {
		Token Token `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out, nil); err != nil {
		return Token{}, err
	}
	c.SetToken(out.Token.AccessToken)
	return out.Token, nil
}
