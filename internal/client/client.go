// Package client talks to a running voicectl daemon over its HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
	"github.com/MrSnakeDoc/voicectl/internal/utils"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voicectl daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the daemon's control API.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the daemon at base (e.g. "http://127.0.0.1:8000").
func New(base string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Start(ctx context.Context, name string) (supervisor.StatusSnapshot, error) {
	return c.lifecycle(ctx, name, "start")
}

func (c *Client) Stop(ctx context.Context, name string) (supervisor.StatusSnapshot, error) {
	return c.lifecycle(ctx, name, "stop")
}

func (c *Client) Restart(ctx context.Context, name string) (supervisor.StatusSnapshot, error) {
	return c.lifecycle(ctx, name, "restart")
}

func (c *Client) Status(ctx context.Context, name string) (supervisor.StatusSnapshot, error) {
	var st supervisor.StatusSnapshot
	err := c.do(ctx, http.MethodGet, servicePath(name, ""), &st)
	return st, err
}

// Logs returns the last lines of a service's output.
func (c *Client) Logs(ctx context.Context, name string, lines int) (supervisor.LogSnapshot, error) {
	var snap supervisor.LogSnapshot
	err := c.do(ctx, http.MethodGet, servicePath(name, "/logs")+"?lines="+strconv.Itoa(lines), &snap)
	return snap, err
}

// Overview returns the raw /api/services document.
func (c *Client) Overview(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, "/api/services", &raw)
	return raw, err
}

// Follow streams a service's output, calling fn for the last lines and then
// every new one, until ctx is cancelled or the daemon closes the stream.
func (c *Client) Follow(ctx context.Context, name string, lines int, fn func(string)) error {
	u, err := url.Parse(c.base + servicePath(name, "/logs/stream") + "?lines=" + strconv.Itoa(lines))
	if err != nil {
		return fmt.Errorf("invalid daemon address: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer utils.Close(resp.Body)
			return decodeError(resp)
		}
		return fmt.Errorf("failed to open log stream: %w", err)
	}
	defer utils.Close(conn)

	// Unblock ReadMessage when the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("log stream interrupted: %w", err)
		}
		fn(string(msg))
	}
}

func (c *Client) lifecycle(ctx context.Context, name, action string) (supervisor.StatusSnapshot, error) {
	var st supervisor.StatusSnapshot
	err := c.do(ctx, http.MethodPost, servicePath(name, "/"+action), &st)
	return st, err
}

func servicePath(name, suffix string) string {
	return "/api/services/" + url.PathEscape(name) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.base, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
