// Package bugzilla provides a read-only client for the Bugzilla REST API.
package bugzilla

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// REST resource paths, relative to the configured base URL.
const (
	ResourceBug            = "bug"
	ResourceUser           = "user"
	ResourceComponent      = "component"
	ResourceProduct        = "product"
	ResourceGroup          = "group"
	ResourceFlagType       = "flag_type"
	ResourceClassification = "classification"
	ResourceVersion        = "version"
	ResourceExtensions     = "extensions"
	ResourceTimezone       = "timezone"
	ResourceTime           = "time"
	ResourceParameters     = "parameters"
	ResourceLastAuditTime  = "last_audit_time"
)

// APIError describes a failed or malformed Bugzilla API exchange. It keeps
// the raw response body so callers can log the upstream diagnostic payload.
type APIError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("bugzilla api: %s (status %d)", e.Reason, e.StatusCode)
	}
	return "bugzilla api: " + e.Reason
}

// DefaultSearchTerms returns the stock query used by the sync job: open
// bugs, no page limit, ordered by priority then severity.
func DefaultSearchTerms() url.Values {
	return url.Values{
		"bug_status":   []string{"__open__"},
		"limit":        []string{"0"},
		"list_id":      []string{"175838"},
		"order":        []string{"priority,bug_severity"},
		"query_format": []string{"specific"},
	}
}

// Client talks to a Bugzilla instance's REST endpoint.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	searchTerms url.Values
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSearchTerms overrides the default search terms used by FetchBugs
// when the caller passes none.
func WithSearchTerms(terms url.Values) Option {
	return func(c *Client) { c.searchTerms = terms }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the given REST base URL,
// e.g. "https://bz.apache.org/bugzilla/rest".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:      slog.Default(),
		searchTerms: DefaultSearchTerms(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resourcePath(resource string) string {
	return c.baseURL + "/" + resource
}

// FetchBugs queries the bug resource and returns the decoded bug list.
// If params is nil the client's default search terms are used; otherwise
// params replaces the default set entirely. HTTP failures and responses
// missing the top-level "bugs" key are returned as *APIError carrying the
// raw body.
func (c *Client) FetchBugs(ctx context.Context, params url.Values) ([]Bug, error) {
	if params == nil {
		params = c.searchTerms
	}

	body, status, err := c.get(ctx, c.resourcePath(ResourceBug), params)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: string(body), Reason: "request failed"}
	}

	// Bugzilla can send bad data even on HTTP 200, and error documents
	// omit the "bugs" key. Surface the raw text in both cases.
	var doc struct {
		Bugs *[]Bug `json:"bugs"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &APIError{StatusCode: status, Body: string(body), Reason: "undecodable response body"}
	}
	if doc.Bugs == nil {
		return nil, &APIError{StatusCode: status, Body: string(body), Reason: `response missing "bugs" key`}
	}

	c.logger.Debug("fetched bugs", "count", len(*doc.Bugs))
	return *doc.Bugs, nil
}

// FetchBug retrieves a single bug by its Bugzilla id. Returns nil when the
// response contains an empty bug list.
func (c *Client) FetchBug(ctx context.Context, id int64) (*Bug, error) {
	bugs, err := c.FetchBugs(ctx, url.Values{"id": []string{strconv.FormatInt(id, 10)}})
	if err != nil {
		return nil, err
	}
	if len(bugs) == 0 {
		return nil, nil
	}
	return &bugs[0], nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("sending request", "url", u.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", u.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}
