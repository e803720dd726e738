package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/aria-assistant/internal/health"
	"github.com/eleven-am/aria-assistant/internal/shared"
	"github.com/eleven-am/aria-assistant/internal/shell"
)

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// readiness reports 503 with a full body when unhealthy
	if resp.StatusCode >= 400 && !(path == "/health/ready" && resp.StatusCode == http.StatusServiceUnavailable) {
		var apiErr shared.APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *client) Snapshot(ctx context.Context) (shell.Snapshot, error) {
	var snap shell.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/assistant", &snap)
	return snap, err
}

func (c *client) Open(ctx context.Context) (shell.Snapshot, error) {
	var snap shell.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/v1/assistant/open", &snap)
	return snap, err
}

func (c *client) Close(ctx context.Context) (shell.Snapshot, error) {
	var snap shell.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/v1/assistant/close", &snap)
	return snap, err
}

func (c *client) Toggle(ctx context.Context) (shell.ToggleResponse, error) {
	var resp shell.ToggleResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/assistant/toggle", &resp)
	return resp, err
}

func (c *client) Health(ctx context.Context) (health.HealthResponse, error) {
	var resp health.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health/ready", &resp)
	return resp, err
}

func (c *client) eventsURL() (string, error) {
	u, err := url.Parse(c.base + "/api/v1/assistant/events")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

func (c *client) Events(ctx context.Context) (*websocket.Conn, error) {
	target, err := c.eventsURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial events: %w", err)
	}
	return conn, nil
}
