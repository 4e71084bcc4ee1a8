// Package health probes the HTTP health endpoint of a supervised service.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
	"github.com/MrSnakeDoc/voicectl/internal/utils"
)

// Result statuses.
const (
	StatusOK          = "ok"
	StatusUnhealthy   = "unhealthy"
	StatusUnreachable = "unreachable"
)

// maxBody bounds how much of a health response is read.
const maxBody = 64 << 10

// Result is the outcome of one health probe.
type Result struct {
	Service    string         `json:"service"`
	Status     string         `json:"status"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Body       map[string]any `json:"body,omitempty"`
	Error      string         `json:"error,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

// Checker issues health probes against services on the local host.
type Checker struct {
	client  *http.Client
	host    string
	timeout time.Duration
	now     func() time.Time
}

// NewChecker creates a checker with the given per-probe timeout.
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 0,
				}).DialContext,
				DisableKeepAlives: true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		host:    "127.0.0.1",
		timeout: timeout,
		now:     time.Now,
	}
}

// WithHost overrides the probed host, mostly for tests.
func (c *Checker) WithHost(host string) *Checker {
	c.host = host
	return c
}

// URL returns the health endpoint for def.
func (c *Checker) URL(def catalog.Definition) string {
	path := def.HealthPath
	if path == "" {
		path = catalog.DefaultHealthPath
	}
	return "http://" + net.JoinHostPort(c.host, strconv.Itoa(def.Port)) + path
}

// Check probes def. Failures are reported in the Result, never as an error,
// so callers can store and serve them as-is.
func (c *Checker) Check(ctx context.Context, def catalog.Definition) Result {
	res := Result{Service: def.Name}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(def), http.NoBody)
	if err != nil {
		return c.fail(res, StatusUnreachable, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(res, StatusUnreachable, err)
	}
	defer utils.Close(resp.Body)

	res.HTTPStatus = resp.StatusCode
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return c.fail(res, StatusUnreachable, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(res, StatusUnhealthy, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return c.fail(res, StatusUnhealthy, fmt.Errorf("invalid health payload: %w", err))
	}

	res.Status = StatusOK
	res.Body = body
	res.CheckedAt = c.now()
	return res
}

func (c *Checker) fail(res Result, status string, err error) Result {
	res.Status = status
	res.Error = err.Error()
	res.CheckedAt = c.now()
	return res
}
