// Package cli holds the HTTP client used by the procurement command line tool.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/google/uuid"
)

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s (status: %d)", e.Message, e.StatusCode)
	if len(e.Details) > 0 {
		msg += ": " + strings.Join(e.Details, "; ")
	}
	return msg
}

// Client talks to the procurement API with a bearer token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var result models.LoginResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
		Username: username,
		Password: password,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRequests lists the requests visible to the token's user
func (c *Client) ListRequests(ctx context.Context, status string, limit, offset int) (*models.PurchaseRequestListResponse, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	path := "/api/v1/requests"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result models.PurchaseRequestListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRequest fetches a single request
func (c *Client) GetRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	var result models.PurchaseRequest
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/requests/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Approve approves at the level matching the caller's role
func (c *Client) Approve(ctx context.Context, id uuid.UUID, comments string) (*models.PurchaseRequest, error) {
	return c.review(ctx, id, "approve", comments)
}

// Reject rejects at the level matching the caller's role
func (c *Client) Reject(ctx context.Context, id uuid.UUID, comments string) (*models.PurchaseRequest, error) {
	return c.review(ctx, id, "reject", comments)
}

// Cancel cancels a request
func (c *Client) Cancel(ctx context.Context, id uuid.UUID, comments string) (*models.PurchaseRequest, error) {
	return c.review(ctx, id, "cancel", comments)
}

func (c *Client) review(ctx context.Context, id uuid.UUID, action, comments string) (*models.PurchaseRequest, error) {
	var result models.PurchaseRequest
	path := fmt.Sprintf("/api/v1/requests/%s/%s", id, action)
	if err := c.doRequest(ctx, http.MethodPost, path, models.ApprovalActionRequest{Comments: comments}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}
