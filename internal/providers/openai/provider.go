// internal/providers/openai/provider.go
// Package openai talks to kolosal-server's OpenAI-compatible endpoint with go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/providers"
	goopenai "github.com/sashabaranov/go-openai"
)

// Name is the provider name used in configuration.
const Name = "openai"

// Options configures the provider.
type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8080. "/v1" is appended.
	BaseURL      string
	APIKey       string
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	HTTPClient   *http.Client
}

// Provider streams chat completions using the OpenAI wire format.
type Provider struct {
	client *goopenai.Client
	opts   Options
}

var _ providers.ChatProvider = (*Provider)(nil)

// New returns a provider for opts.
func New(opts Options) *Provider {
	cfg := goopenai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/") + "/v1"
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg), opts: opts}
}

// Name implements providers.ChatProvider.
func (p *Provider) Name() string { return Name }

func (p *Provider) request(req providers.StreamRequest, stream bool) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Message},
		},
		MaxTokens:   p.opts.MaxNewTokens,
		Temperature: float32(p.opts.Temperature),
		TopP:        float32(p.opts.TopP),
		Stream:      stream,
	}
}

// Stream implements providers.ChatProvider. The OpenAI format carries no speed figures,
// so TPS is derived from the chunk count and TTFT is measured locally in milliseconds.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	start := time.Now()
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(req, true))
	if err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	var chunks int
	var ttft float64
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("openai stream: %w", err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if chunks == 0 {
				ttft = float64(time.Since(start).Milliseconds())
			}
			chunks++
			if callbacks.OnChunk != nil {
				if err := callbacks.OnChunk(providers.Chunk{Text: choice.Delta.Content, TTFT: ttft}); err != nil {
					return err
				}
			}
		}
	}

	elapsed := time.Since(start)
	logging.LogEvent("[OPENAI] stream for %s finished: %d chunks in %s", req.Model, chunks, elapsed)
	if callbacks.OnComplete != nil {
		meta := providers.StreamMetadata{Model: req.Model, Chunks: chunks, TTFT: ttft, Duration: elapsed}
		if secs := elapsed.Seconds(); secs > 0 {
			meta.TPS = float64(chunks) / secs
		}
		return callbacks.OnComplete(meta)
	}
	return nil
}

// Complete implements providers.ChatProvider.
func (p *Provider) Complete(ctx context.Context, req providers.StreamRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(req, false))
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close implements providers.ChatProvider.
func (p *Provider) Close() error { return nil }
