package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tetherhq/cli/cmd/tether/cli/reconcile"
)

const (
	userAgent      = "tether-cli"
	requestTimeout = 10 * time.Second

	// Responses are small JSON payloads; cap reads to keep a misbehaving
	// server from exhausting memory.
	maxResponseBytes = 16 << 20
)

// Client queries the agent server's HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient returns a client for the server at baseURL, e.g.
// "http://127.0.0.1:8317".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: requestTimeout},
	}
}

// BaseURL returns the server address this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Health reports whether the server answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health")
	return err
}

// Diffs fetches the diffs the server reports for a session, correlated to
// messageID when non-empty. An empty result is normal; the server's API
// may lag behind its own push events.
func (c *Client) Diffs(ctx context.Context, sessionID, messageID string) ([]reconcile.Diff, error) {
	path := "/sessions/" + url.PathEscape(sessionID) + "/diffs"
	if messageID != "" {
		path += "?message=" + url.QueryEscape(messageID)
	}
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var diffs []reconcile.Diff
	if err := json.Unmarshal(body, &diffs); err != nil {
		return nil, fmt.Errorf("decoding diffs response: %w", err)
	}
	return diffs, nil
}

// Summary is the server's session summary, the fallback diff source when
// the diff query keeps coming back empty.
type Summary struct {
	SessionID string           `json:"session_id"`
	Busy      bool             `json:"busy"`
	Diffs     []reconcile.Diff `json:"diffs"`
}

// SessionSummary fetches the summary for a session.
func (c *Client) SessionSummary(ctx context.Context, sessionID string) (*Summary, error) {
	body, err := c.get(ctx, "/sessions/"+url.PathEscape(sessionID)+"/summary")
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding summary response: %w", err)
	}
	return &s, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status code: %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
