package kolosal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/kolosaltest"
	"github.com/mwiater/kolosalctl/internal/providers"
	"github.com/mwiater/kolosalctl/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) (*Provider, *kolosaltest.Server) {
	t.Helper()
	srv := kolosaltest.New()
	t.Cleanup(srv.Close)
	tr := transport.New(transport.Options{Timeout: 2 * time.Second})
	return New(kolosal.New(kolosal.NewConnection(srv.URL, "k"), tr)), srv
}

// TestStreamForwardsChunksAndMetadata verifies that streamed chunks reach the callbacks along with the final metadata.
func TestStreamForwardsChunksAndMetadata(t *testing.T) {
	t.Parallel()

	p, srv := newProvider(t)
	srv.SetStream(http.StatusOK,
		`data: {"text":"Hel","tps":10,"ttft":50,"partial":true}`,
		`data: {"text":"lo","tps":12,"ttft":50,"partial":false}`,
	)

	var sb strings.Builder
	var meta providers.StreamMetadata
	err := p.Stream(context.Background(), providers.StreamRequest{Model: "e", Message: "hi"}, providers.StreamCallbacks{
		OnChunk: func(c providers.Chunk) error {
			sb.WriteString(c.Text)
			return nil
		},
		OnComplete: func(m providers.StreamMetadata) error {
			meta = m
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", sb.String())
	assert.Equal(t, "e", meta.Model)
	assert.Equal(t, 2, meta.Chunks)
	assert.Equal(t, 12.0, meta.TPS)
	assert.Equal(t, 50.0, meta.TTFT)
	assert.Equal(t, Name, p.Name())
}

// TestStreamReturnsCallbackError verifies that an OnChunk error stops the stream and is returned.
func TestStreamReturnsCallbackError(t *testing.T) {
	t.Parallel()

	p, srv := newProvider(t)
	srv.SetStream(http.StatusOK, `data: {"text":"a"}`, `data: {"text":"b","partial":false}`)

	stop := errors.New("stop")
	calls := 0
	completed := false
	err := p.Stream(context.Background(), providers.StreamRequest{Model: "e", Message: "hi"}, providers.StreamCallbacks{
		OnChunk: func(providers.Chunk) error {
			calls++
			return stop
		},
		OnComplete: func(providers.StreamMetadata) error {
			completed = true
			return nil
		},
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.False(t, completed)
}

// TestStreamPropagatesEmptyStream verifies that an empty stream is reported as an error.
func TestStreamPropagatesEmptyStream(t *testing.T) {
	t.Parallel()

	p, srv := newProvider(t)
	srv.SetStream(http.StatusOK)
	err := p.Stream(context.Background(), providers.StreamRequest{Model: "e", Message: "hi"}, providers.StreamCallbacks{})
	assert.ErrorIs(t, err, kolosal.ErrEmptyStream)
}

// TestComplete verifies that Complete returns the full reply text.
func TestComplete(t *testing.T) {
	t.Parallel()

	p, srv := newProvider(t)
	text := "full reply"
	srv.SetChatText(&text)
	got, err := p.Complete(context.Background(), providers.StreamRequest{Model: "e", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "full reply", got)
	assert.NoError(t, p.Close())
}
