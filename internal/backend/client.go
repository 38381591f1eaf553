package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pipelabs/pipegate/internal/config"
)

// Client is the HTTP adapter for the trading backend. Calls honor the
// context deadline; the gateway decides what a timeout means per kind.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.BackendConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
	}
}

func (c *Client) GetBalance(ctx context.Context, clientID string) (*BalanceSnapshot, error) {
	var snap BalanceSnapshot
	path := "/clients/" + url.PathEscape(clientID) + "/portfolio"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	snap.ClientID = clientID
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	return &snap, nil
}

func (c *Client) GetHistory(ctx context.Context, clientID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	var trades []Trade
	path := "/clients/" + url.PathEscape(clientID) + "/trades?limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (c *Client) PlaceOrder(ctx context.Context, sub OrderSubmission) (*OrderAck, error) {
	var ack OrderAck
	if err := c.doJSON(ctx, http.MethodPost, "/orders", sub, &ack); err != nil {
		return nil, err
	}
	if ack.SubmittedAt.IsZero() {
		ack.SubmittedAt = time.Now().UTC()
	}
	return &ack, nil
}

func (c *Client) CancelOrder(ctx context.Context, clientID, orderID string) error {
	path := "/orders/" + url.PathEscape(orderID) + "?client_id=" + url.QueryEscape(clientID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend: %s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
