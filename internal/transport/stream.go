// internal/transport/stream.go
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrStopStream may be returned by a chunk callback to end a stream early without error.
var ErrStopStream = errors.New("stop stream")

// Stream performs one long-lived POST and calls onChunk for every data fragment the
// server sends. Fragments are newline delimited; an SSE "data:" prefix is stripped and
// "event:", "id:", comment and blank lines are dropped. "[DONE]" ends the stream.
//
// Stream has no client-side timeout; ctx bounds it. Frames are delivered even when the
// status is not 2xx, and the status is then reported in the returned *Error.
func (c *Client) Stream(ctx context.Context, req Request, onChunk func([]byte) error) error {
	if req.Method == "" {
		req.Method = "POST"
	}
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.stream.Do(httpReq)
	if err != nil {
		c.observe(req, 0, start)
		return &Error{Op: req.Method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()
	defer c.observe(req, resp.StatusCode, start)

	var statusErr error
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr = &Error{Op: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			frame, ok := extractFrame(line)
			if ok {
				if string(frame) == "[DONE]" {
					return statusErr
				}
				if cbErr := onChunk(frame); cbErr != nil {
					if errors.Is(cbErr, ErrStopStream) {
						return statusErr
					}
					return cbErr
				}
			} else if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
				logFrameSkip(req.URL, trimmed)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return statusErr
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &Error{Op: req.Method, URL: req.URL, StatusCode: resp.StatusCode, Err: readErr}
		}
	}
}

// extractFrame returns the payload of one line, or false if the line carries no data.
func extractFrame(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false
	}
	switch {
	case bytes.HasPrefix(line, []byte("data:")):
		payload := bytes.TrimSpace(line[len("data:"):])
		if len(payload) == 0 {
			return nil, false
		}
		return payload, true
	case bytes.HasPrefix(line, []byte(":")),
		bytes.HasPrefix(line, []byte("event:")),
		bytes.HasPrefix(line, []byte("id:")),
		bytes.HasPrefix(line, []byte("retry:")):
		return nil, false
	default:
		return line, true
	}
}
