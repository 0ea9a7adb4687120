package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to a riskproxy server.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "sk_...". Only needed for write tools.
}

// Client is a plain HTTP client for the registry API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new registry API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the registry.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.Status)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// doRequest makes an HTTP request and decodes the JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	u, err := url.JoinPath(c.cfg.APIURL, path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// AddressInfo is the registry's answer for one address.
type AddressInfo struct {
	Address  string `json:"address"`
	Category string `json:"category"`
	Risk     int    `json:"risk"`
	Flagged  bool   `json:"flagged"`
}

// ReporterInfo describes one reporter.
type ReporterInfo struct {
	Account  string `json:"account"`
	Role     int    `json:"role"`
	RoleName string `json:"roleName"`
}

// CategoryInfo is one entry of the category taxonomy.
type CategoryInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Stats summarizes the registry.
type Stats struct {
	Initialized      bool   `json:"initialized"`
	Owner            string `json:"owner"`
	Reporters        int64  `json:"reporters"`
	Authorities      int64  `json:"authorities"`
	FlaggedAddresses int64  `json:"flaggedAddresses"`
}

// GetAddress looks up an address.
func (c *Client) GetAddress(ctx context.Context, address string) (*AddressInfo, error) {
	var out AddressInfo
	if err := c.doRequest(ctx, http.MethodGet, "/v1/addresses/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReporter returns a reporter's role. A non-reporter yields a 404 APIError.
func (c *Client) GetReporter(ctx context.Context, account string) (*ReporterInfo, error) {
	var out ReporterInfo
	if err := c.doRequest(ctx, http.MethodGet, "/v1/reporters/"+url.PathEscape(account), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCategories returns the category taxonomy.
func (c *Client) ListCategories(ctx context.Context) ([]CategoryInfo, error) {
	var out struct {
		Categories []CategoryInfo `json:"categories"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/categories", nil, &out); err != nil {
		return nil, err
	}
	return out.Categories, nil
}

// GetStats returns registry statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.doRequest(ctx, http.MethodGet, "/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FlagAddress creates a record for an unflagged address.
func (c *Client) FlagAddress(ctx context.Context, address, category string, risk int) (*AddressInfo, error) {
	body := map[string]any{"address": address, "category": category, "risk": risk}
	var out AddressInfo
	if err := c.doRequest(ctx, http.MethodPost, "/v1/addresses", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAddress replaces the record of a flagged address.
func (c *Client) UpdateAddress(ctx context.Context, address, category string, risk int) (*AddressInfo, error) {
	body := map[string]any{"category": category, "risk": risk}
	var out AddressInfo
	if err := c.doRequest(ctx, http.MethodPut, "/v1/addresses/"+url.PathEscape(address), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
