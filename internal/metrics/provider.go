// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/providers"
)

// Provider is a decorator that wraps a ChatProvider to record metrics.
type Provider struct {
	wrapped   providers.ChatProvider
	collector *Collector
}

var _ providers.ChatProvider = (*Provider)(nil)

// NewProvider creates a new metrics-enabled provider that wraps an existing ChatProvider.
func NewProvider(wrapped providers.ChatProvider, collector *Collector) *Provider {
	logging.LogEvent("[METRICS] Wrapping %s provider with metrics provider", wrapped.Name())
	return &Provider{wrapped: wrapped, collector: collector}
}

// Name passes the call through to the wrapped provider.
func (p *Provider) Name() string { return p.wrapped.Name() }

// Stream intercepts the call to the wrapped provider's Stream method to record
// time to first chunk and the final tokens-per-second figure.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	startTime := time.Now()
	var firstChunkTime time.Time

	onChunk := func(chunk providers.Chunk) error {
		if firstChunkTime.IsZero() {
			firstChunkTime = time.Now()
		}
		if callbacks.OnChunk != nil {
			return callbacks.OnChunk(chunk)
		}
		return nil
	}

	onComplete := func(meta providers.StreamMetadata) error {
		if p.collector != nil {
			ttft := 0.0
			if !firstChunkTime.IsZero() {
				ttft = firstChunkTime.Sub(startTime).Seconds()
			}
			p.collector.ObserveChat(p.wrapped.Name(), ttft, meta.TPS)
		}
		if callbacks.OnComplete != nil {
			return callbacks.OnComplete(meta)
		}
		return nil
	}

	return p.wrapped.Stream(ctx, req, providers.StreamCallbacks{OnChunk: onChunk, OnComplete: onComplete})
}

// Complete passes the call through to the wrapped provider.
func (p *Provider) Complete(ctx context.Context, req providers.StreamRequest) (string, error) {
	return p.wrapped.Complete(ctx, req)
}

// Close passes the call through to the wrapped provider.
func (p *Provider) Close() error {
	return p.wrapped.Close()
}
