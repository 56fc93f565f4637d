package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamServer(t *testing.T, status int, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("missing Accept header: %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		flusher, _ := w.(http.Flusher)
		for _, l := range lines {
			fmt.Fprintln(w, l)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func collect(t *testing.T, c *Client, url string) ([]string, error) {
	t.Helper()
	var frames []string
	err := c.Stream(context.Background(), Request{URL: url, Body: []byte(`{}`)}, func(b []byte) error {
		frames = append(frames, string(b))
		return nil
	})
	return frames, err
}

// TestStreamStripsSSEFraming verifies that data: prefixes are removed before records reach the callback.
func TestStreamStripsSSEFraming(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, http.StatusOK,
		": keep-alive",
		"event: message",
		`data: {"text":"Hel"}`,
		"",
		`data:{"text":"lo"}`,
		"id: 7",
		`{"partial":false}`,
	)
	defer srv.Close()

	frames, err := collect(t, New(Options{}), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"text":"Hel"}`, `{"text":"lo"}`, `{"partial":false}`}, frames)
}

// TestStreamStopsAtDone verifies that the [DONE] marker ends the stream.
func TestStreamStopsAtDone(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, http.StatusOK, `data: {"text":"a"}`, "data: [DONE]", `data: {"text":"never"}`)
	defer srv.Close()

	frames, err := collect(t, New(Options{}), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"text":"a"}`}, frames)
}

// TestStreamCallbackCanStop verifies that ErrStopStream ends the stream without an error.
func TestStreamCallbackCanStop(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, http.StatusOK, `data: 1`, `data: 2`, `data: 3`)
	defer srv.Close()

	var seen []string
	err := New(Options{}).Stream(context.Background(), Request{URL: srv.URL}, func(b []byte) error {
		seen = append(seen, string(b))
		if string(b) == "2" {
			return ErrStopStream
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, seen)
}

// TestStreamCallbackErrorPropagates verifies that any other callback error is returned.
func TestStreamCallbackErrorPropagates(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, http.StatusOK, `data: 1`)
	defer srv.Close()

	boom := errors.New("boom")
	err := New(Options{}).Stream(context.Background(), Request{URL: srv.URL}, func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}

// TestStreamDeliversFramesOnErrorStatus checks that a non-2xx response still has its
// frames delivered, with the status reported afterwards.
func TestStreamDeliversFramesOnErrorStatus(t *testing.T) {
	t.Parallel()

	srv := streamServer(t, http.StatusInternalServerError, `data: {"text":"still here"}`)
	defer srv.Close()

	frames, err := collect(t, New(Options{}), srv.URL)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, []string{`{"text":"still here"}`}, frames)
}

// TestExtractFrame verifies that only data lines with a payload yield frames.
func TestExtractFrame(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"data: x\n", "x", true},
		{"data:\n", "", false},
		{"  \r\n", "", false},
		{": ping\n", "", false},
		{"retry: 100\n", "", false},
		{`{"a":1}` + "\r\n", `{"a":1}`, true},
	}
	for _, tc := range cases {
		got, ok := extractFrame([]byte(tc.in))
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, string(got), tc.in)
	}
}
