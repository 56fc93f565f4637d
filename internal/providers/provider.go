// internal/providers/provider.go

// Package providers defines the interface for talking to a chat backend.
// It provides a common abstraction over the native Kolosal inference endpoint and the
// server's OpenAI-compatible endpoint, so commands can stream replies without caring
// which wire format is in use.
package providers

import (
	"context"
	"time"
)

// Chunk is one streamed text fragment.
// TPS and TTFT are the server's running figures when the backend reports them, else zero.
type Chunk struct {
	Text string
	TPS  float64
	TTFT float64
}

// StreamMetadata describes a finished stream.
type StreamMetadata struct {
	Model       string
	Chunks      int
	TPS         float64
	TTFT        float64
	ServerError string
	Duration    time.Duration
}

// StreamRequest is everything needed to start one chat exchange.
type StreamRequest struct {
	Model   string
	Message string
}

// StreamCallbacks defines the callback functions that are invoked during a chat stream.
// OnChunk is called for each fragment received, and OnComplete is called when the stream is finished.
type StreamCallbacks struct {
	OnChunk    func(Chunk) error
	OnComplete func(StreamMetadata) error
}

// ChatProvider is the interface that all chat backends implement.
type ChatProvider interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Stream sends the request and delivers the reply as it is generated.
	Stream(ctx context.Context, req StreamRequest, callbacks StreamCallbacks) error
	// Complete sends the request and returns the whole reply.
	Complete(ctx context.Context, req StreamRequest) (string, error)
	// Close cleans up any resources used by the provider.
	Close() error
}
