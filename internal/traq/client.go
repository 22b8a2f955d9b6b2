// Package traq provides a client for the traQ REST API.
//
// FILES:
//   - client.go: API client and HTTP helpers
//   - types.go:  Stamp projection, image stream and error types
//
// The client never logs or stores credentials. Bearer tokens passed to
// FetchStampImage live only for the duration of the call.
package traq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const userAgent = "stamp-gateway/1.0"

// maxBodySize caps JSON responses read into memory (stamp list, token, errors).
const maxBodySize = 32 * 1024 * 1024

// =============================================================================
// Client
// =============================================================================

// Client is the traQ API client.
type Client struct {
	baseURL    string
	botToken   string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = timeout
	}
}

// WithBotToken sets the server credential used for the stamp list.
func WithBotToken(token string) ClientOption {
	return func(client *Client) {
		client.botToken = strings.TrimSpace(token)
	}
}

// NewClient creates a traQ client for baseURL (e.g. https://q.trap.jp/api/v3).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasBotToken reports whether stamp list refreshes are authenticated.
func (c *Client) HasBotToken() bool {
	return c.botToken != ""
}

// =============================================================================
// OAUTH
// =============================================================================

// ExchangeCode trades an authorization code for a token payload.
// The payload is returned verbatim; its fields are not interpreted.
// The code is forwarded as given, so an empty code is rejected by upstream.
func (c *Client) ExchangeCode(ctx context.Context, clientID, code string) (json.RawMessage, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, ErrMissingClientID
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &AuthError{Status: status, Body: string(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing token response: invalid JSON")
	}
	return json.RawMessage(body), nil
}

// =============================================================================
// STAMPS
// =============================================================================

// GetStamps fetches the stamp directory and projects each record to
// {name, id}, keeping upstream order. Extra fields are ignored.
func (c *Client) GetStamps(ctx context.Context) ([]StampSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stamps", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.botToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.botToken)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &FetchError{Op: "stamp list", Status: status, Body: string(body)}
	}
	return ProjectStamps(body)
}

// ProjectStamps reduces a raw upstream stamp array to StampSummary values.
func ProjectStamps(body []byte) ([]StampSummary, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parsing stamp list: invalid JSON")
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("parsing stamp list: expected array, got %s", parsed.Type)
	}

	records := parsed.Array()
	stamps := make([]StampSummary, 0, len(records))
	for _, r := range records {
		stamps = append(stamps, StampSummary{
			Name: r.Get("name").String(),
			ID:   r.Get("id").String(),
		})
	}
	return stamps, nil
}

// FetchStampImage opens the image for stampID using the caller's bearer token.
// On success the body is returned unread so it can be streamed.
func (c *Client) FetchStampImage(ctx context.Context, stampID, token string) (*StampImage, error) {
	endpoint := c.baseURL + "/stamps/" + url.PathEscape(stampID) + "/image"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Op: "stamp image", Status: resp.StatusCode, Body: string(body)}
	}

	return &StampImage{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// =============================================================================
// HTTP Helpers
// =============================================================================

// do sends req and reads the whole (bounded) response body.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
