package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the conventional remote debugging port.
const DefaultPort = 9222

// VersionInfo is the body of GET /json/version.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// TargetInfo is one element of GET /json/list.
type TargetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// APIError represents a non-2xx response from the DevTools HTTP endpoint.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// DevToolsClient talks to the browser's DevTools HTTP endpoint.
type DevToolsClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a DevToolsClient.
type ClientOption func(*DevToolsClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *DevToolsClient) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at an explicit base URL instead of host:port.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *DevToolsClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewDevToolsClient creates a client for http://host:port.
func NewDevToolsClient(host string, port int, opts ...ClientOption) *DevToolsClient {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = DefaultPort
	}
	c := &DevToolsClient{
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the endpoint the client talks to.
func (c *DevToolsClient) BaseURL() string {
	return c.baseURL
}

// Version performs the liveness probe. Any failure, including a non-2xx
// status, wraps ErrDebuggerNotRunning.
func (c *DevToolsClient) Version(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := c.getJSON(ctx, "/json/version", &info); err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrDebuggerNotRunning, c.baseURL, err)
	}
	return &info, nil
}

// ListTargets enumerates debuggable targets.
func (c *DevToolsClient) ListTargets(ctx context.Context) ([]TargetInfo, error) {
	var targets []TargetInfo
	if err := c.getJSON(ctx, "/json/list", &targets); err != nil {
		return nil, fmt.Errorf("list targets at %s: %w", c.baseURL, err)
	}
	return targets, nil
}

// getJSON sends a GET request and unmarshals the JSON response into dest.
// Returns *APIError for non-2xx responses.
func (c *DevToolsClient) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(body)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: bodyStr}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

var newTabPrefixes = []string{
	"chrome://newtab",
	"chrome://new-tab-page",
	"edge://newtab",
	"about:newtab",
}

func isNewTab(url string) bool {
	for _, prefix := range newTabPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// SelectTarget picks the first page that is not a new-tab page, falling
// back to any page. Pages without a session URL are already attached to
// another client and cannot be used.
func SelectTarget(targets []TargetInfo) (TargetInfo, error) {
	var fallback *TargetInfo
	for i := range targets {
		t := targets[i]
		if t.Type != "page" || t.WebSocketDebuggerURL == "" {
			continue
		}
		if !isNewTab(t.URL) {
			return t, nil
		}
		if fallback == nil {
			fallback = &targets[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return TargetInfo{}, fmt.Errorf("%w among %d targets", ErrNoDebuggableTarget, len(targets))
}
