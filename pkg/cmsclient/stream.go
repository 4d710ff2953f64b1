package cmsclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StreamPreview subscribes to the preview relay as role and calls fn for
// every message until ctx is cancelled, the server closes the stream, or fn
// returns an error. Cancelling ctx is a clean stop and returns nil.
func (c *Client) StreamPreview(ctx context.Context, role string, fn func(PreviewMessage) error) error {
	if c.sessionToken() == "" && c.password != "" {
		if err := c.Login(ctx); err != nil {
			return err
		}
	}

	path := "/api/admin/preview/stream?role=" + url.QueryEscape(role)
	hdr := http.Header{"Accept": []string{"text/event-stream"}}

	resp, err := c.sendWith(ctx, c.stream, http.MethodGet, path, nil, hdr)
	if err != nil {
		return fmt.Errorf("preview stream: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized && c.password != "" {
		resp.Body.Close()
		if err := c.Login(ctx); err != nil {
			return err
		}
		resp, err = c.sendWith(ctx, c.stream, http.MethodGet, path, nil, hdr)
		if err != nil {
			return fmt.Errorf("preview stream: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	err = readSSE(resp.Body, func(event, data string) error {
		if event != "preview" {
			return nil
		}
		var msg PreviewMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return fmt.Errorf("parsing preview event: %w", err)
		}
		return fn(msg)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE parses a text/event-stream body and calls handle once per
// dispatched event. Comment lines (heartbeats) are skipped, and an event
// left unterminated at EOF is discarded.
func readSSE(body io.Reader, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if len(dataLines) > 0 {
				if eventType == "" {
					eventType = "message"
				}
				if err := handle(eventType, strings.Join(dataLines, "\n")); err != nil {
					return err
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	return scanner.Err()
}
