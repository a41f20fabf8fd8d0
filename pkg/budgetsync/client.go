// Package budgetsync keeps a locally edited budget in sync with the portal's
// budget endpoint through a debounced mutation pipeline.
package budgetsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vaihtoaktivaattori/portal/pkg/budget"
)

// Client talks to {authApiBase}/budget.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) *Client {
	c.token = token
	return c
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Get fetches the remote budget. A missing budget is returned as an empty one.
func (c *Client) Get(ctx context.Context) (budget.Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return budget.Snapshot{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to fetch budget: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return budget.New(""), nil
	}
	if resp.StatusCode >= 300 {
		return budget.Snapshot{}, statusError(resp)
	}

	return decodeSnapshot(resp.Body)
}

// Put replaces the remote budget with s and returns what the server stored.
func (c *Client) Put(ctx context.Context, s budget.Snapshot) (budget.Snapshot, error) {
	s = s.Clone()
	s.Recalculate()

	body, err := json.Marshal(s)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to marshal budget: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, bytes.NewReader(body))
	if err != nil {
		return budget.Snapshot{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to save budget: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return budget.Snapshot{}, statusError(resp)
	}
	if resp.StatusCode == http.StatusNoContent {
		return s, nil
	}

	return decodeSnapshot(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/budget", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// wireSnapshot accepts every identifier spelling the backends have used.
type wireSnapshot struct {
	ID         string                     `json:"id"`
	MongoID    string                     `json:"_id"`
	BudgetID   string                     `json:"budget_id"`
	Categories map[string]budget.Category `json:"categories"`
	Total      *float64                   `json:"total"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
	Budget     *wireSnapshot              `json:"budget"`
}

func decodeSnapshot(r io.Reader) (budget.Snapshot, error) {
	var w wireSnapshot
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to decode budget: %w", err)
	}
	return w.normalize(), nil
}

func (w wireSnapshot) normalize() budget.Snapshot {
	if w.Budget != nil && w.Categories == nil {
		return w.Budget.normalize()
	}

	s := budget.Snapshot{
		ID:         firstNonEmpty(w.ID, w.MongoID, w.BudgetID),
		Categories: w.Categories,
		UpdatedAt:  w.UpdatedAt,
	}
	s.Recalculate()
	if w.Total != nil && *w.Total >= s.Total {
		s.Total = *w.Total
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// StatusError is returned for non-success responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("budget API returned status %d: %s", e.StatusCode, e.Body)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
