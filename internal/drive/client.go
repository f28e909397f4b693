// Implements the HTTP file-storage client with rate limiting and retries.

package drive

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

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the storage API base URL.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"
	// DefaultUploadURL is the storage content-upload base URL.
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
	// fileFields is the metadata field set requested on every call.
	fileFields = "id,name,mimeType,parents,modifiedTime,trashed,size"
	// requestsPerSecond is the client-side rate limit.
	requestsPerSecond = 10
	// maxRetries caps retries for rate-limit and server-error responses.
	maxRetries = 3
	// serverErrorBackoff is the linear backoff step after a 5xx response.
	serverErrorBackoff = 2 * time.Second
)

// Error represents a storage API error response.
type Error struct {
	Status  int
	Message string

	// RetryAfter is the server-provided wait hint on rate limiting.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("storage error (status %d): %s", e.Status, e.Message)
}

// Client is a rate-limited storage API client implementing [Store].
type Client struct {
	tokens     oauth2.TokenSource
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Store = (*Client)(nil)

// NewClient creates a storage client authenticating via tokens.
func NewClient(tokens oauth2.TokenSource) *Client {
	return &Client{
		tokens:    tokens,
		baseURL:   DefaultBaseURL,
		uploadURL: DefaultUploadURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// SetBaseURLs overrides the API endpoints. Used by tests.
func (c *Client) SetBaseURLs(base, upload string) {
	c.baseURL = base
	c.uploadURL = upload
}

// do performs an HTTP request with rate limiting and bounded retries,
// mirroring the remote collection client's policy: rate-limit responses
// wait for the server hint, server errors back off linearly, client
// errors return immediately.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		respBody, err := c.doOnce(ctx, method, rawURL, contentType, payload)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		apiErr, ok := err.(*Error)
		if !ok {
			return nil, err
		}

		var wait time.Duration
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			wait = apiErr.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
		case apiErr.Status >= 500:
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

func (c *Client) doOnce(ctx context.Context, method, rawURL, contentType string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	tok.SetAuthHeader(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode, Message: string(respBody)}
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				apiErr.RetryAfter = time.Duration(secs * float64(time.Second))
			}
		}
		return nil, apiErr
	}

	return respBody, nil
}

func (c *Client) metaURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("fields", fileFields)
	return c.baseURL + path + "?" + query.Encode()
}

// CreateFolder implements Store.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*File, error) {
	return c.createMeta(ctx, parentID, name, MimeFolder)
}

// CreateFile implements Store. The file's metadata and content are
// written in two calls; the content call preserves the new file's ID.
func (c *Client) CreateFile(ctx context.Context, parentID, name, mimeType string, content []byte) (*File, error) {
	f, err := c.createMeta(ctx, parentID, name, mimeType)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return f, nil
	}
	return c.WriteContent(ctx, f.ID, content)
}

func (c *Client) createMeta(ctx context.Context, parentID, name, mimeType string) (*File, error) {
	meta := map[string]any{
		"name":     name,
		"mimeType": mimeType,
	}
	if parentID != "" {
		meta["parents"] = []string{parentID}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.metaURL("/files", nil), "application/json", payload)
	if err != nil {
		return nil, err
	}
	return parseFile(data)
}

// Get implements Store.
func (c *Client) Get(ctx context.Context, id string) (*File, error) {
	data, err := c.do(ctx, http.MethodGet, c.metaURL("/files/"+id, nil), "", nil)
	if err != nil {
		return nil, err
	}
	return parseFile(data)
}

// ListChildren implements Store, handling page-token pagination.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]*File, error) {
	var files []*File
	pageToken := ""

	for {
		query := url.Values{}
		query.Set("q", fmt.Sprintf("%q in parents and trashed=false", parentID))
		query.Set("fields", "nextPageToken,files("+fileFields+")")
		query.Set("pageSize", "1000")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		data, err := c.do(ctx, http.MethodGet, c.baseURL+"/files?"+query.Encode(), "", nil)
		if err != nil {
			return nil, err
		}

		var resp struct {
			NextPageToken string  `json:"nextPageToken"`
			Files         []*File `json:"files"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse list response: %w", err)
		}
		files = append(files, resp.Files...)

		if resp.NextPageToken == "" {
			return files, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Rename implements Store.
func (c *Client) Rename(ctx context.Context, id, name string) (*File, error) {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	data, err := c.do(ctx, http.MethodPatch, c.metaURL("/files/"+id, nil), "application/json", payload)
	if err != nil {
		return nil, err
	}
	return parseFile(data)
}

// Move implements Store.
func (c *Client) Move(ctx context.Context, id, oldParentID, newParentID string) error {
	query := url.Values{}
	query.Set("addParents", newParentID)
	query.Set("removeParents", oldParentID)
	_, err := c.do(ctx, http.MethodPatch, c.metaURL("/files/"+id, query), "application/json", []byte("{}"))
	return err
}

// Trash implements Store.
func (c *Client) Trash(ctx context.Context, id string) error {
	payload := []byte(`{"trashed":true}`)
	_, err := c.do(ctx, http.MethodPatch, c.metaURL("/files/"+id, nil), "application/json", payload)
	return err
}

// ReadContent implements Store.
func (c *Client) ReadContent(ctx context.Context, id string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/files/"+id+"?alt=media", "", nil)
}

// WriteContent implements Store.
func (c *Client) WriteContent(ctx context.Context, id string, content []byte) (*File, error) {
	query := url.Values{}
	query.Set("uploadType", "media")
	query.Set("fields", fileFields)
	data, err := c.do(ctx, http.MethodPatch, c.uploadURL+"/files/"+id+"?"+query.Encode(), "application/octet-stream", content)
	if err != nil {
		return nil, err
	}
	return parseFile(data)
}

func parseFile(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse file metadata: %w", err)
	}
	return &f, nil
}
