// Package backend is the client for the newsletter base API, which scrapes
// reference pages, stores newsletters and emails subscribers.
package backend

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

	"github.com/ignite/newsletter-ai/internal/config"
	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/httpretry"
)

// APIKeyHeader carries the base API credential on every request.
const APIKeyHeader = "X-API-KEY"

// ErrEmptyReference is returned when the scrape endpoint answers without text.
var ErrEmptyReference = errors.New("base API returned an empty reference")

// APIError is a non-2xx answer from the base API.
type APIError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("base API %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client calls the newsletter base API. Only /scrapeRef is retried; a
// repeated /addData or /sendEmail could store or email twice.
type Client struct {
	baseURL      string
	apiKey       string
	retries      int
	httpClient   httpretry.HTTPDoer
	scrapeClient httpretry.HTTPDoer
}

// NewClient creates a base API client from config.
func NewClient(cfg config.BackendConfig) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		retries: cfg.ScrapeRetries(),
	}
	c.SetHTTPClient(&http.Client{Timeout: cfg.Timeout()})
	return c
}

// SetHTTPClient sets a custom HTTP client (useful for testing). opts tune
// the backoff of retried scrape calls.
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer, opts ...httpretry.Option) {
	c.httpClient = client
	c.scrapeClient = httpretry.NewRetryClient(client, c.retries, opts...)
}

// FetchReference asks the base API to scrape url and returns the page text.
func (c *Client) FetchReference(ctx context.Context, url string) (string, error) {
	var out struct {
		Reference string `json:"reference"`
	}
	if err := c.post(ctx, c.scrapeClient, "/scrapeRef", map[string]string{"url": url}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Reference) == "" {
		return "", ErrEmptyReference
	}
	return out.Reference, nil
}

// persistRequest is the /addData body. The local document ID stays out of
// it; the base API assigns its own.
type persistRequest struct {
	Title    string           `json:"title"`
	Tag      string           `json:"tag"`
	Category domain.Category  `json:"category"`
	Date     domain.Date      `json:"date"`
	Sections []domain.Section `json:"content"`
}

func newPersistRequest(doc *domain.Newsletter) persistRequest {
	return persistRequest{
		Title:    doc.Title,
		Tag:      doc.Tag,
		Category: doc.Category,
		Date:     doc.Date,
		Sections: doc.Sections,
	}
}

// Persist stores doc through /addData and returns the code the API reports.
// Only 200 means the document was stored.
func (c *Client) Persist(ctx context.Context, doc *domain.Newsletter) (int, error) {
	var out struct {
		Code int `json:"code"`
	}
	if err := c.post(ctx, c.httpClient, "/addData", newPersistRequest(doc), &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.StatusCode, err
		}
		return 0, err
	}
	return out.Code, nil
}

// Dispatch asks the base API to email the announcement and returns its
// status line.
func (c *Client) Dispatch(ctx context.Context, req domain.EmailRequest) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.post(ctx, c.httpClient, "/sendEmail", req, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Ping checks that the base API answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	resp.Body.Close()
	return nil
}

// post sends body as JSON to path through doer and decodes the response
// into out.
func (c *Client) post(ctx context.Context, doer httpretry.HTTPDoer, path string, body, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := doer.Do(req)
	if err != nil {
		return fmt.Errorf("base API %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("base API %s: decoding response: %w", path, err)
	}
	return nil
}
