// Package watch follows a user's event stream and renders it for a terminal.
package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"FeedbackFlow/internal/domain"
)

const maxFrameSize = 1 << 20

// Client reads server-sent events from a FeedbackFlow server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for baseURL. The HTTP client must not set a
// total timeout because the stream is long-lived.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Stream subscribes as userID and calls handle for every event until ctx is
// cancelled, the server closes the stream, or handle returns an error.
func (c *Client) Stream(ctx context.Context, userID string, handle func(domain.Event) error) error {
	endpoint := fmt.Sprintf("%s/api/events?userId=%s", c.baseURL, url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("stream rejected: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	err = readFrames(resp.Body, handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func readFrames(r io.Reader, handle func(domain.Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Text()
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		var event domain.Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := handle(event); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
