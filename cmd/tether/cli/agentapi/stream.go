package agentapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tetherhq/cli/cmd/tether/cli/logging"
)

const (
	streamPath        = "/events"
	reconnectBaseWait = time.Second
	reconnectMaxWait  = 30 * time.Second
)

// Stream opens the server's event stream and calls handler for every
// decoded event, in arrival order, until the connection drops or ctx is
// canceled. Returns nil on clean EOF.
func (c *Client) Stream(ctx context.Context, handler func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath, nil)
	if err != nil {
		return fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", userAgent)

	// No client timeout here; the stream is long-lived and ends via ctx.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: unexpected status code: %d", resp.StatusCode)
	}
	return readStream(ctx, resp.Body, handler)
}

// readStream parses server-sent-event frames: "event:" and "data:" lines
// accumulated until a blank line dispatches the frame.
func readStream(ctx context.Context, r io.Reader, handler func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)

	var kind string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch(ctx, kind, data.String(), handler)
			kind = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		default:
			// Comments ( ":..." ) and fields we do not use, e.g. "id:".
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading event stream: %w", err)
	}
	// A final frame without a trailing blank line still counts.
	dispatch(ctx, kind, data.String(), handler)
	return nil
}

func dispatch(ctx context.Context, kind, data string, handler func(Event)) {
	if kind == "" || data == "" {
		return
	}
	event, err := parseEvent(kind, []byte(data))
	if err != nil {
		logging.Warn(ctx, "dropping malformed event", "kind", kind, "error", err)
		return
	}
	if event == nil {
		logging.Debug(ctx, "ignoring unknown event kind", "kind", kind)
		return
	}
	handler(event)
}

// StreamWithRetry keeps the event stream open, reconnecting with capped
// exponential backoff, until ctx is canceled. A successful read resets the
// backoff.
func (c *Client) StreamWithRetry(ctx context.Context, handler func(Event)) {
	wait := reconnectBaseWait
	for {
		start := time.Now()
		err := c.Stream(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logging.Warn(ctx, "event stream dropped", "error", err, "retry_in", wait.String())
		}
		if time.Since(start) > reconnectMaxWait {
			wait = reconnectBaseWait
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > reconnectMaxWait {
			wait = reconnectMaxWait
		}
	}
}
