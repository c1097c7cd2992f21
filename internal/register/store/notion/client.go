// Package notion implements the remote page store: each student is a page
// in a hosted database, each week a named checkbox property. Writes are
// partial property patches, never full-document replacement, so unrelated
// fields survive concurrent edits.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rollbook/pkg/platform/circuit"
	"rollbook/pkg/platform/sentinel"
)

const apiVersion = "2022-06-28"

// defaultPageSize bounds every query; the core's contract never requires
// pagination past the first page.
const defaultPageSize = 100

// Client is a minimal typed client for the subset of the page-store API
// the register needs: search, database create, page query/create/patch.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *circuit.Breaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different API host, mainly for tests.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// NewClient constructs a Client authenticated with the integration token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    "https://api.notion.com/v1",
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    circuit.New(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// richText is the fragment shape shared by titles and text properties.
type richText struct {
	PlainText string `json:"plain_text"`
	Text      *struct {
		Content string `json:"content"`
	} `json:"text"`
}

func (r richText) content() string {
	if r.PlainText != "" {
		return r.PlainText
	}
	if r.Text != nil {
		return r.Text.Content
	}
	return ""
}

func joinRichText(parts []richText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.content())
	}
	return strings.TrimSpace(b.String())
}

// property is the union of the property kinds the register uses. Absent or
// null members parse to safe defaults instead of failing.
type property struct {
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	Number   *float64   `json:"number"`
	Checkbox *bool      `json:"checkbox"`
}

type page struct {
	ID          string              `json:"id"`
	CreatedTime time.Time           `json:"created_time"`
	Properties  map[string]property `json:"properties"`
}

type database struct {
	ID          string     `json:"id"`
	CreatedTime time.Time  `json:"created_time"`
	Title       []richText `json:"title"`
	Parent      struct {
		Type   string `json:"type"`
		PageID string `json:"page_id"`
	} `json:"parent"`
}

type searchResponse struct {
	Results []database `json:"results"`
}

type queryResponse struct {
	Results []page `json:"results"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) searchDatabases(ctx context.Context) ([]database, error) {
	body := map[string]any{
		"filter":    map[string]any{"property": "object", "value": "database"},
		"page_size": defaultPageSize,
	}
	var res searchResponse
	if err := c.do(ctx, http.MethodPost, "/search", body, &res); err != nil {
		return nil, fmt.Errorf("search databases: %w", err)
	}
	return res.Results, nil
}

func (c *Client) createDatabase(ctx context.Context, parentPageID, title string, properties map[string]any) (database, error) {
	body := map[string]any{
		"parent": map[string]any{"page_id": parentPageID},
		"title": []map[string]any{
			{"type": "text", "text": map[string]any{"content": title}},
		},
		"properties": properties,
	}
	var db database
	if err := c.do(ctx, http.MethodPost, "/databases", body, &db); err != nil {
		return database{}, fmt.Errorf("create database: %w", err)
	}
	return db, nil
}

func (c *Client) queryDatabase(ctx context.Context, databaseID string, filter map[string]any, pageSize int) ([]page, error) {
	body := map[string]any{"page_size": pageSize}
	if filter != nil {
		body["filter"] = filter
	}
	var res queryResponse
	if err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", body, &res); err != nil {
		return nil, fmt.Errorf("query database: %w", err)
	}
	return res.Results, nil
}

func (c *Client) createPage(ctx context.Context, databaseID string, properties map[string]any) (page, error) {
	body := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": properties,
	}
	var p page
	if err := c.do(ctx, http.MethodPost, "/pages", body, &p); err != nil {
		return page{}, fmt.Errorf("create page: %w", err)
	}
	return p, nil
}

func (c *Client) patchPage(ctx context.Context, pageID string, properties map[string]any) (page, error) {
	body := map[string]any{"properties": properties}
	var p page
	if err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, &p); err != nil {
		return page{}, fmt.Errorf("patch page: %w", err)
	}
	return p, nil
}

func (c *Client) archivePage(ctx context.Context, pageID string) error {
	body := map[string]any{"archived": true}
	var p page
	if err := c.do(ctx, http.MethodPatch, "/pages/"+pageID, body, &p); err != nil {
		return fmt.Errorf("archive page: %w", err)
	}
	return nil
}

// do issues one request and decodes the response. Transport failures and
// server errors map to sentinel.ErrUnavailable, 404 to ErrNotFound and 409
// to ErrConflict so stores stay consistent across backends.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("%s %s: circuit open: %w", method, path, sentinel.ErrUnavailable)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", apiVersion)

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("%s %s: %v: %w", method, path, err, sentinel.ErrUnavailable)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("read response: %v: %w", err, sentinel.ErrUnavailable)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr) // best effort, body may not be JSON
		msg := apiErr.Message
		if msg == "" {
			msg = res.Status
		}
		switch {
		case res.StatusCode == http.StatusNotFound:
			// The backend answered, so it is healthy even though the
			// entity is missing.
			c.breaker.RecordSuccess()
			return fmt.Errorf("%s: %w", msg, sentinel.ErrNotFound)
		case res.StatusCode == http.StatusConflict:
			c.breaker.RecordSuccess()
			return fmt.Errorf("%s: %w", msg, sentinel.ErrConflict)
		default:
			c.breaker.RecordFailure()
			return fmt.Errorf("status %d: %s: %w", res.StatusCode, msg, sentinel.ErrUnavailable)
		}
	}
	c.breaker.RecordSuccess()

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
