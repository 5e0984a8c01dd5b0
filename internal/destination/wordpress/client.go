// Package wordpress is a destination that writes records through the
// WordPress REST API (wp-json/wp/v2) using application-password auth.
package wordpress

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

	"github.com/steveyegge/feedsync/internal/schema"
)

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCredentials sets the user and application password.
func WithCredentials(user, appPassword string) ClientOption {
	return func(c *Client) {
		c.user = user
		c.password = appPassword
	}
}

// WithContentType sets the content type used for deletes, which carry no payload.
func WithContentType(contentType string) ClientOption {
	return func(c *Client) {
		c.contentType = contentType
	}
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wordpress API returned HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("wordpress API returned HTTP %d", e.StatusCode)
}

// Client talks to one WordPress site.
type Client struct {
	httpClient  HTTPClient
	baseURL     string
	user        string
	password    string
	contentType string
}

// NewClient creates a client for the site at siteURL.
func NewClient(siteURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimRight(siteURL, "/") + "/wp-json/wp/v2",
		contentType: "post",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type postResponse struct {
	ID int64 `json:"id"`
}

// Create creates a record and returns its id.
func (c *Client) Create(ctx context.Context, payload *schema.Payload) (int64, error) {
	var resp postResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint(payload.ContentType, 0), encodePayload(payload), &resp); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", payload.ContentType, err)
	}
	if resp.ID <= 0 {
		return 0, fmt.Errorf("failed to create %s: response carried no id", payload.ContentType)
	}
	return resp.ID, nil
}

// Update overwrites the record localID.
func (c *Client) Update(ctx context.Context, localID int64, payload *schema.Payload) (int64, error) {
	var resp postResponse
	if err := c.do(ctx, http.MethodPost, c.endpoint(payload.ContentType, localID), encodePayload(payload), &resp); err != nil {
		return 0, fmt.Errorf("failed to update %s %d: %w", payload.ContentType, localID, err)
	}
	if resp.ID > 0 {
		return resp.ID, nil
	}
	return localID, nil
}

// Delete permanently deletes localID. A 404 reports false without error.
func (c *Client) Delete(ctx context.Context, localID int64) (bool, error) {
	url := c.endpoint(c.contentType, localID) + "?force=true"
	err := c.do(ctx, http.MethodDelete, url, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete %d: %w", localID, err)
	}
	return true, nil
}

// NormalizeTemplate assigns the default template to reports.
func (c *Client) NormalizeTemplate(ctx context.Context, localID int64, contentType string) error {
	if contentType != "reports" {
		return nil
	}
	body := map[string]interface{}{"template": "default"}
	if err := c.do(ctx, http.MethodPost, c.endpoint(contentType, localID), body, nil); err != nil {
		return fmt.Errorf("failed to set template on %d: %w", localID, err)
	}
	return nil
}

// endpoint returns the collection or item URL for a content type.
func (c *Client) endpoint(contentType string, id int64) string {
	base := restBase(contentType)
	if id > 0 {
		return fmt.Sprintf("%s/%s/%d", c.baseURL, base, id)
	}
	return fmt.Sprintf("%s/%s", c.baseURL, base)
}

func restBase(contentType string) string {
	switch contentType {
	case "", "post":
		return "posts"
	case "page":
		return "pages"
	default:
		return contentType
	}
}

func encodePayload(p *schema.Payload) map[string]interface{} {
	body := map[string]interface{}{
		"title":   p.Title,
		"content": p.Body,
		"status":  p.Status,
		"author":  p.Author,
	}
	if !p.PublishDate.IsZero() {
		body["date_gmt"] = p.PublishDate.UTC().Format("2006-01-02T15:04:05")
	}
	if len(p.CategoryIDs) > 0 && p.Taxonomy != "" {
		key := p.Taxonomy
		if key == "category" {
			key = "categories"
		}
		body[key] = p.CategoryIDs
	}
	return body
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
