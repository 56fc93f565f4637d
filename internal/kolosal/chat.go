// internal/kolosal/chat.go
package kolosal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/transport"
)

const chatPath = "/v1/inference/chat/completions"

// GenerationParams controls sampling for chat completions.
type GenerationParams struct {
	MaxNewTokens int
	Temperature  float64
	TopP         float64
}

// DefaultGeneration returns the server's customary sampling settings.
func DefaultGeneration() GenerationParams {
	return GenerationParams{MaxNewTokens: 2048, Temperature: 0.7, TopP: 0.9}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model        string        `json:"model"`
	Messages     []chatMessage `json:"messages"`
	Streaming    bool          `json:"streaming"`
	MaxNewTokens int           `json:"maxNewTokens"`
	Temperature  float64       `json:"temperature"`
	TopP         float64       `json:"topP"`
}

func (c *Client) chatBody(engineID, message string, streaming bool) ([]byte, error) {
	body, err := json.Marshal(chatRequest{
		Model:        engineID,
		Messages:     []chatMessage{{Role: "user", Content: message}},
		Streaming:    streaming,
		MaxNewTokens: c.gen.MaxNewTokens,
		Temperature:  c.gen.Temperature,
		TopP:         c.gen.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	return body, nil
}

// ChatCompletion sends message to engineID and returns the whole reply.
func (c *Client) ChatCompletion(ctx context.Context, engineID, message string) (string, error) {
	body, err := c.chatBody(engineID, message, false)
	if err != nil {
		return "", err
	}
	logging.LogRequest("out", c.conn.BaseURL, engineID, "chat", body)
	resp, err := c.http.Do(ctx, c.post(chatPath, chatPath, body))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", &ParseError{Op: "chat completion", Err: err}
	}
	if payload.Text == nil {
		return "", &ParseError{Op: "chat completion", Err: errors.New(`response has no "text" field`)}
	}
	return *payload.Text, nil
}

// StreamChunk is one record of a streaming completion.
type StreamChunk struct {
	Text    string          `json:"text"`
	TPS     float64         `json:"tps"`
	TTFT    float64         `json:"ttft"`
	Partial *bool           `json:"partial"`
	Error   json.RawMessage `json:"error"`
}

// Final reports whether the record carries partial:false.
func (s StreamChunk) Final() bool { return s.Partial != nil && !*s.Partial }

// ErrorMessage returns the record's error text. A missing or null error field yields false.
func (s StreamChunk) ErrorMessage() (string, bool) {
	raw := strings.TrimSpace(string(s.Error))
	if raw == "" || raw == "null" {
		return "", false
	}
	var text string
	if err := json.Unmarshal(s.Error, &text); err == nil {
		return text, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(s.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return raw, true
}

// ChunkFunc receives each non-empty text fragment with the server's running
// tokens-per-second and time-to-first-token figures. A non-nil error ends the stream and
// is returned by StreamCompletion.
type ChunkFunc func(text string, tps, ttft float64) error

// StreamResult summarises a streaming completion.
type StreamResult struct {
	ReceivedContent bool
	Completed       bool
	// ServerError is the text of an error record, if one arrived.
	ServerError string
	Chunks      int
	Malformed   int
	TPS         float64
	TTFT        float64
}

// OK reports whether the stream counts as successful: some text arrived or the server
// signalled the end of the stream.
func (r StreamResult) OK() bool { return r.ReceivedContent || r.Completed }

// StreamCompletion sends message to engineID with streaming enabled and hands every
// text fragment to onChunk as it arrives. Fragments that do not decode are skipped.
// A record with partial:false or an error field ends the stream, as does an error
// from onChunk.
//
// Success is judged from the records alone: the error is nil whenever the result is
// OK, whatever the HTTP status. A stream holding nothing but an error record is
// therefore reported as OK with ServerError set; callers that care should check it.
func (c *Client) StreamCompletion(ctx context.Context, engineID, message string, onChunk ChunkFunc) (StreamResult, error) {
	body, err := c.chatBody(engineID, message, true)
	if err != nil {
		return StreamResult{}, err
	}
	log := logging.Logger().With().Str("engine", engineID).Logger()
	logging.LogRequest("out", c.conn.BaseURL, engineID, "stream", body)

	req := transport.Request{
		Method:  http.MethodPost,
		URL:     c.conn.BaseURL + chatPath,
		Body:    body,
		Headers: c.streamHeaders(),
		Route:   chatPath,
	}

	var res StreamResult
	var cbErr error
	streamErr := c.http.Stream(ctx, req, func(frame []byte) error {
		var chunk StreamChunk
		if err := json.Unmarshal(frame, &chunk); err != nil {
			res.Malformed++
			c.rec.StreamMalformed()
			log.Debug().Err(err).Msg("skipping malformed stream fragment")
			return nil
		}
		res.Chunks++

		if chunk.Text != "" {
			res.ReceivedContent = true
			res.TPS, res.TTFT = chunk.TPS, chunk.TTFT
			c.rec.StreamChunk()
			if onChunk != nil {
				if err := onChunk(chunk.Text, chunk.TPS, chunk.TTFT); err != nil {
					cbErr = err
					return transport.ErrStopStream
				}
			}
		}
		if chunk.Final() {
			res.Completed = true
		}
		if msg, ok := chunk.ErrorMessage(); ok {
			res.Completed = true
			res.ServerError = msg
		}
		if res.Completed {
			return transport.ErrStopStream
		}
		return nil
	})

	if cbErr != nil {
		return res, cbErr
	}
	if res.OK() {
		switch {
		case res.ServerError != "" && !res.ReceivedContent:
			log.Warn().Str("error", res.ServerError).Msg("stream ended with a server error before any content")
		case streamErr != nil:
			log.Debug().Err(streamErr).Msg("stream transport error after usable records")
		}
		return res, nil
	}
	if streamErr != nil {
		return res, fmt.Errorf("stream completion: %w", streamErr)
	}
	return res, ErrEmptyStream
}
