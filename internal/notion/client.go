// Implements the remote collection API client with rate limiting and retries.

package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the remote API base URL.
	DefaultBaseURL = "https://api.notion.com/v1"
	// APIVersion is the pinned remote API version.
	APIVersion = "2022-06-28"
	// requestsPerSecond is the client-side rate limit (3 req/sec).
	requestsPerSecond = 3
	// maxRetries caps retries for rate-limit and server-error responses.
	maxRetries = 3
	// serverErrorBackoff is the linear backoff step after a 5xx response.
	serverErrorBackoff = 2 * time.Second
)

// Client is a rate-limited remote collection API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new API client authenticating with token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// SetBaseURL overrides the API endpoint. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = u
}

// do performs an HTTP request with rate limiting and bounded retries.
// Rate-limit responses wait for the server-provided hint; server errors
// back off linearly. Client errors are returned immediately.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		respBody, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		apiErr, ok := err.(*Error)
		if !ok || apiErr.IsTerminal() {
			return nil, err
		}

		var wait time.Duration
		switch {
		case apiErr.IsRateLimited():
			wait = apiErr.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
		case apiErr.IsServerError():
			wait = time.Duration(attempt+1) * serverErrorBackoff
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			apiErr.Message = fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(respBody))
		}
		apiErr.Status = resp.StatusCode
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, apiErr
	}

	return respBody, nil
}

// GetDatabase retrieves a collection and its live schema by ID.
func (c *Client) GetDatabase(ctx context.Context, id string) (*Database, error) {
	data, err := c.do(ctx, http.MethodGet, "/databases/"+id, nil)
	if err != nil {
		return nil, err
	}

	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse database response: %w", err)
	}
	return &db, nil
}

// UpdateDatabase applies a batched schema patch to a collection.
func (c *Client) UpdateDatabase(ctx context.Context, id string, patch *SchemaPatch) (*Database, error) {
	data, err := c.do(ctx, http.MethodPatch, "/databases/"+id, patch)
	if err != nil {
		return nil, err
	}

	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse database response: %w", err)
	}
	return &db, nil
}

// QueryOptions defines options for querying a collection.
type QueryOptions struct {
	Filter      any    `json:"filter,omitempty"`
	Sorts       []Sort `json:"sorts,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

// Sort defines a sort order for collection queries.
type Sort struct {
	Property  string `json:"property,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // "created_time" or "last_edited_time"
	Direction string `json:"direction"`           // "ascending" or "descending"
}

// QueryDatabase queries a collection for one page of results.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, opts *QueryOptions) (*QueryResponse, error) {
	if opts == nil {
		opts = &QueryOptions{}
	}
	if opts.PageSize == 0 {
		opts.PageSize = 100
	}

	data, err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", opts)
	if err != nil {
		return nil, err
	}

	var resp QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}
	return &resp, nil
}

// QueryDatabaseAll queries pages in a collection, handling pagination.
// maxBatches bounds the number of cursor fetches (0 = unlimited).
func (c *Client) QueryDatabaseAll(ctx context.Context, databaseID string, opts *QueryOptions, maxBatches int) ([]Page, error) {
	var pages []Page
	var cursor string

	for batch := 0; maxBatches == 0 || batch < maxBatches; batch++ {
		reqOpts := &QueryOptions{
			PageSize:    100,
			StartCursor: cursor,
		}
		if opts != nil {
			reqOpts.Filter = opts.Filter
			reqOpts.Sorts = opts.Sorts
		}

		resp, err := c.QueryDatabase(ctx, databaseID, reqOpts)
		if err != nil {
			return nil, err
		}

		pages = append(pages, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = *resp.NextCursor
	}

	return pages, nil
}

// GetPage retrieves a page by ID.
func (c *Client) GetPage(ctx context.Context, id string) (*Page, error) {
	data, err := c.do(ctx, http.MethodGet, "/pages/"+id, nil)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse page response: %w", err)
	}
	return &page, nil
}

// CreatePage creates a new page in a collection.
func (c *Client) CreatePage(ctx context.Context, req *CreatePageRequest) (*Page, error) {
	data, err := c.do(ctx, http.MethodPost, "/pages", req)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse page response: %w", err)
	}
	return &page, nil
}

// UpdatePage patches properties on an existing page.
func (c *Client) UpdatePage(ctx context.Context, id string, req *UpdatePageRequest) (*Page, error) {
	data, err := c.do(ctx, http.MethodPatch, "/pages/"+id, req)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse page response: %w", err)
	}
	return &page, nil
}

// Search searches for collections matching the request.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if req.PageSize == 0 {
		req.PageSize = 100
	}

	data, err := c.do(ctx, http.MethodPost, "/search", req)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &resp, nil
}

// SearchDatabases finds all collections visible to the integration,
// handling pagination.
func (c *Client) SearchDatabases(ctx context.Context, query string) ([]Database, error) {
	var results []Database
	var cursor string

	for {
		req := &SearchRequest{
			Query:       query,
			Filter:      &SearchFilter{Value: "database", Property: "object"},
			StartCursor: cursor,
			PageSize:    100,
		}

		resp, err := c.Search(ctx, req)
		if err != nil {
			return nil, err
		}

		results = append(results, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil {
			break
		}
		cursor = *resp.NextCursor
	}

	return results, nil
}
