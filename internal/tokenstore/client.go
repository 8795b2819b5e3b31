// Package tokenstore forwards a captured session token to the downstream store.
package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signin-token-sync/internal/models"
)

const (
	userAgent      = "signin-token-sync/1.0"
	maxErrorBody   = 512
	defaultTimeout = 15 * time.Second
)

type payload struct {
	AccessToken string `json:"access_token"`
}

// Client posts tokens to one endpoint
type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a Client for url. A nil httpClient uses http.DefaultClient.
func NewClient(url string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: url, timeout: timeout, httpClient: httpClient}
}

// Forward sends {"access_token": token} once. Any 2xx is success; everything else wraps ErrForwarding.
func (c *Client) Forward(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload{AccessToken: token})
	if err != nil {
		return fmt.Errorf("%w: encode: %w", models.ErrForwarding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrForwarding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrForwarding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: unexpected status %d: %s", models.ErrForwarding, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
