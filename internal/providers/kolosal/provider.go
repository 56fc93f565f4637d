// internal/providers/kolosal/provider.go
// Package kolosal adapts the native kolosal-server inference endpoint to providers.ChatProvider.
package kolosal

import (
	"context"
	"time"

	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/providers"
)

// Name is the provider name used in configuration.
const Name = "kolosal"

// Provider streams through kolosal.Client.
type Provider struct {
	client *kolosal.Client
}

var _ providers.ChatProvider = (*Provider)(nil)

// New returns a provider backed by client.
func New(client *kolosal.Client) *Provider {
	return &Provider{client: client}
}

// Name implements providers.ChatProvider.
func (p *Provider) Name() string { return Name }

// Stream implements providers.ChatProvider. An error from OnChunk stops the request
// and is returned as is.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	start := time.Now()
	res, err := p.client.StreamCompletion(ctx, req.Model, req.Message, func(text string, tps, ttft float64) error {
		if callbacks.OnChunk == nil {
			return nil
		}
		return callbacks.OnChunk(providers.Chunk{Text: text, TPS: tps, TTFT: ttft})
	})
	if err != nil {
		return err
	}
	if res.ServerError != "" {
		logging.LogEvent("[KOLOSAL] stream for %s ended with server error: %s", req.Model, res.ServerError)
	}
	if callbacks.OnComplete != nil {
		return callbacks.OnComplete(providers.StreamMetadata{
			Model:       req.Model,
			Chunks:      res.Chunks,
			TPS:         res.TPS,
			TTFT:        res.TTFT,
			ServerError: res.ServerError,
			Duration:    time.Since(start),
		})
	}
	return nil
}

// Complete implements providers.ChatProvider.
func (p *Provider) Complete(ctx context.Context, req providers.StreamRequest) (string, error) {
	return p.client.ChatCompletion(ctx, req.Model, req.Message)
}

// Close implements providers.ChatProvider.
func (p *Provider) Close() error { return nil }
