package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned by Send when no base URL is set.
var ErrNotConfigured = errors.New("messaging: base url not configured")

// Client calls the outbound messaging gateway.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with configurable timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type sendResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// Send posts text to recipient via {base}/sendMessage.
func (c *Client) Send(ctx context.Context, to, text string) error {
	if c.BaseURL == "" {
		return ErrNotConfigured
	}
	if to == "" {
		return fmt.Errorf("recipient required")
	}

	body, _ := json.Marshal(sendRequest{To: to, Message: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("messaging request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("messaging error %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	// Some gateways answer 200 with {"success": false}.
	var out sendResponse
	if len(raw) > 0 && json.Unmarshal(raw, &out) == nil && out.Success != nil && !*out.Success {
		if out.Message == "" {
			out.Message = "rejected"
		}
		return fmt.Errorf("messaging rejected: %s", out.Message)
	}
	return nil
}

// Health checks if the gateway is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.BaseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("messaging unavailable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("messaging unhealthy: %s", resp.Status)
	}
	return nil
}
