package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cuemby/conduit/pkg/types"
)

// ErrNotFound is returned when the admin API answers 404
var ErrNotFound = errors.New("not found")

const (
	// APIKeyHeader carries the admin key on every request
	APIKeyHeader = "X-API-KEY"

	adminPath = "/apisix/admin"

	// maxErrorBody bounds how much of a failed response is kept in StatusError
	maxErrorBody = 512
)

// API is the contract the reconciler needs from the control plane. Client
// implements it over HTTP; tests substitute fakes.
type API interface {
	List(ctx context.Context, kind types.Kind) ([]byte, error)
	Put(ctx context.Context, kind types.Kind, id string, payload []byte) error
	Delete(ctx context.Context, kind types.Kind, id string) error
}

// StatusError reports a non-2xx answer other than 404
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Config configures a Client
type Config struct {
	// BaseURL is the admin endpoint, e.g. "http://127.0.0.1:9180"
	BaseURL string

	// APIKey is sent as X-API-KEY; empty sends no header
	APIKey string

	// Timeout bounds each request (default: 10s)
	Timeout time.Duration

	// RateLimit is the sustained requests per second; 0 disables throttling
	RateLimit float64

	// Burst is the token bucket size (default: 1 when RateLimit is set)
	Burst int

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// Client talks to the gateway admin API
type Client struct {
	base    *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

var _ API = (*Client)(nil)

// NewClient creates a client for the admin API at cfg.BaseURL
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("admin URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid admin URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid admin URL %q: scheme must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   httpClient,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// List returns the raw response body of a collection request
func (c *Client) List(ctx context.Context, kind types.Kind) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.endpoint(kind, ""), nil)
}

// Put creates or replaces one entity
func (c *Client) Put(ctx context.Context, kind types.Kind, id string, payload []byte) error {
	if id == "" {
		return fmt.Errorf("put %s: empty id", kind.Singular())
	}
	_, err := c.do(ctx, http.MethodPut, c.endpoint(kind, id), payload)
	return err
}

// Delete removes one entity
func (c *Client) Delete(ctx context.Context, kind types.Kind, id string) error {
	if id == "" {
		return fmt.Errorf("delete %s: empty id", kind.Singular())
	}
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(kind, id), nil)
	return err
}

func (c *Client) endpoint(kind types.Kind, id string) string {
	u := *c.base
	u.Path = c.base.Path + adminPath + "/" + string(kind)
	u.RawPath = ""
	if id != "" {
		u.RawPath = c.base.EscapedPath() + adminPath + "/" + string(kind) + "/" + url.PathEscape(id)
		u.Path += "/" + id
	}
	return u.String()
}

// Endpoint returns the URL the client lists kind from
func (c *Client) Endpoint(kind types.Kind) string {
	return c.endpoint(kind, "")
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit wait: %w", method, target, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, target, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, target, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{
			Method: method,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
