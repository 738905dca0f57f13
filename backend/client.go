package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/carlmjohnson/versioninfo"
)

const (
	ExecutePath = "/api/execute"
	StatusPath  = "/api/status"
	HealthPath  = "/api/health"
)

// Client talks to the execution backend. It carries no request timeout:
// step streams stay open for as long as the step runs and are bounded by
// the caller's context instead.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

type ClientOpt func(*Client)

func WithHTTPClient(hc *http.Client) ClientOpt {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(l *slog.Logger) ClientOpt {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(baseURL string, opts ...ClientOpt) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		userAgent: "nfviz/" + versioninfo.Short(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

// Execute starts a step and returns the streaming response body. The
// caller must close it.
func (c *Client) Execute(ctx context.Context, r ExecuteRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, ExecutePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Status fetches the aggregate snapshot used by the polling reconciler.
func (c *Client) Status(ctx context.Context) (*Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, StatusPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &snap, nil
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, HealthPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &h, nil
}

// WaitReady polls the health endpoint with exponential backoff until the
// backend answers or timeout elapses.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var h *Health
	err := retry.Do(
		func() error {
			var err error
			h, err = c.Health(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(250*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("backend not ready", "url", c.baseURL, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("backend at %s not ready: %w", c.baseURL, err)
	}
	return h, nil
}
