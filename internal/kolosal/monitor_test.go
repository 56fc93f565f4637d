package kolosal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwiater/kolosalctl/internal/kolosaltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressCall struct {
	pct   float64
	state DownloadState
}

func fastMonitor() MonitorOptions {
	return MonitorOptions{Interval: 10 * time.Millisecond, Timeout: 5 * time.Second}
}

// TestMonitorNotFoundIsSuccess verifies that a download the server no longer knows about counts as finished.
func TestMonitorNotFoundIsSuccess(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.ScriptProgress("m",
		kolosaltest.Downloading(10),
		kolosaltest.Downloading(50),
		kolosaltest.ProgressStep{NotFound: true},
	)
	c := newTestClient(t, srv.URL)

	var calls []progressCall
	err := c.Monitor(context.Background(), "m", func(pct float64, state DownloadState, _, _ int64) {
		calls = append(calls, progressCall{pct, state})
	}, fastMonitor())

	require.NoError(t, err)
	assert.Equal(t, []progressCall{
		{10, StateDownloading},
		{50, StateDownloading},
		{0, StateNotFound},
	}, calls)
}

// TestMonitorFailedStatus verifies that a failed download ends monitoring with a DownloadFailedError.
func TestMonitorFailedStatus(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.ScriptProgress("m", kolosaltest.Downloading(20), kolosaltest.Status("failed"))
	c := newTestClient(t, srv.URL)

	calls := 0
	err := c.Monitor(context.Background(), "m", func(float64, DownloadState, int64, int64) { calls++ }, fastMonitor())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)

	var dfe *DownloadFailedError
	require.True(t, errors.As(err, &dfe))
	assert.Equal(t, StateFailed, dfe.State)
	assert.Equal(t, 2, calls)
}

// TestMonitorTerminalStates verifies that every terminal state ends monitoring with the right outcome.
func TestMonitorTerminalStates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state string
		ok    bool
	}{
		{"completed", true},
		{"creating_engine", true},
		{"engine_created", true},
		{"failed", false},
		{"cancelled", false},
		{"engine_creation_failed", false},
	}
	for _, tc := range cases {
		t.Run(tc.state, func(t *testing.T) {
			t.Parallel()
			srv := newFakeServer(t)
			srv.ScriptProgress("m", kolosaltest.Status(tc.state))
			c := newTestClient(t, srv.URL)
			err := c.Monitor(context.Background(), "m", nil, fastMonitor())
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDownloadFailed)
			}
		})
	}
}

// TestMonitorSwallowsTransientErrorsAndUnknownStates verifies that poll errors and unknown states do not stop monitoring.
func TestMonitorSwallowsTransientErrorsAndUnknownStates(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.ScriptProgress("m",
		kolosaltest.ProgressStep{HTTPStatus: http.StatusInternalServerError},
		kolosaltest.Status("verifying"),
		kolosaltest.ProgressStep{HTTPStatus: http.StatusBadGateway},
		kolosaltest.Status("engine_created"),
	)
	rec := &countingRecorder{}
	c := newTestClient(t, srv.URL, WithRecorder(rec))

	var states []DownloadState
	err := c.Monitor(context.Background(), "m", func(_ float64, s DownloadState, _, _ int64) {
		states = append(states, s)
	}, fastMonitor())

	require.NoError(t, err)
	assert.Equal(t, []DownloadState{"verifying", StateEngineCreated}, states)
	assert.Equal(t, []string{"error", "verifying", "error", "engine_created"}, rec.polls)
}

// TestMonitorCancellation verifies that monitoring stops with the context error once the context is cancelled.
func TestMonitorCancellation(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.ScriptProgress("m", kolosaltest.Downloading(1))
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	err := c.Monitor(ctx, "m", nil, fastMonitor())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// TestMonitorOverallTimeout verifies that monitoring gives up with a TimeoutError after the configured limit.
func TestMonitorOverallTimeout(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.ScriptProgress("m", kolosaltest.Downloading(1))
	c := newTestClient(t, srv.URL)

	err := c.Monitor(context.Background(), "m", nil, MonitorOptions{Interval: 10 * time.Millisecond, Timeout: 80 * time.Millisecond})
	var te *TimeoutError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 80*time.Millisecond, te.After)
}

// TestMonitorEvents verifies that MonitorEvents delivers progress on a channel and closes it when the download ends.
func TestMonitorEvents(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	srv.ScriptProgress("m", kolosaltest.Downloading(25), kolosaltest.Downloading(75), kolosaltest.Status("completed"))
	c := newTestClient(t, srv.URL)

	events, result := c.MonitorEvents(context.Background(), "m", fastMonitor())
	var pcts []float64
	for ev := range events {
		assert.Equal(t, "m", ev.ID)
		pcts = append(pcts, ev.Percentage)
	}
	require.NoError(t, <-result)
	assert.Equal(t, []float64{25, 75, 0}, pcts)
}

// TestMonitorEventsDoesNotBlockOnUnreadEvents verifies that a caller waiting only on the
// result still gets it when more observations arrive than the buffer holds, and that the
// newest observation survives.
func TestMonitorEventsDoesNotBlockOnUnreadEvents(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	steps := make([]kolosaltest.ProgressStep, 0, 41)
	for i := 0; i < 40; i++ {
		steps = append(steps, kolosaltest.Downloading(float64(i)))
	}
	steps = append(steps, kolosaltest.Status("completed"))
	srv.ScriptProgress("m", steps...)
	c := newTestClient(t, srv.URL)

	events, result := c.MonitorEvents(context.Background(), "m",
		MonitorOptions{Interval: time.Millisecond, Timeout: 10 * time.Second})

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("monitor blocked on an unread events channel")
	}

	var got []DownloadStatus
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), monitorEventBuffer)
	assert.Equal(t, StateCompleted, got[len(got)-1].State)
}

// TestPollProgressShapes verifies that progress replies are decoded from every payload shape, including empty and unparsable ones.
func TestPollProgressShapes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/download-progress/bare":
			_, _ = w.Write([]byte(`{}`))
		case "/v1/download-progress/noprogress":
			_, _ = w.Write([]byte(`{"status":"pending"}`))
		case "/v1/download-progress/garbage":
			_, _ = w.Write([]byte(`nope`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"something_else"}}`))
		}
	}))
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv.URL)

	st, err := c.PollProgress(context.Background(), "bare")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, st.State)

	st, err = c.PollProgress(context.Background(), "noprogress")
	require.NoError(t, err)
	assert.Equal(t, StatePending, st.State)
	assert.Zero(t, st.TotalBytes)

	_, err = c.PollProgress(context.Background(), "garbage")
	var pe *ParseError
	assert.True(t, errors.As(err, &pe), "got %v", err)

	_, err = c.PollProgress(context.Background(), "other")
	assert.Error(t, err)
}

// TestPollProgressNotFound verifies that a 404 progress reply maps to the not-found state.
func TestPollProgressNotFound(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	c := newTestClient(t, srv.URL)
	st, err := c.PollProgress(context.Background(), "never-started")
	require.NoError(t, err)
	assert.Equal(t, DownloadStatus{ID: "never-started", State: StateNotFound}, st)
}

// TestDownloadControl verifies that cancel, pause and resume hit their control routes.
func TestDownloadControl(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.CancelDownload(ctx, "a:Q4"))
	require.NoError(t, c.PauseDownload(ctx, "a:Q4"))
	require.NoError(t, c.ResumeDownload(ctx, "a:Q4"))
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/downloads/a:Q4/cancel"))
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/downloads/a:Q4/pause"))
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/downloads/a:Q4/resume"))

	srv.SetControlReply(map[string]any{"success": true, "cancelled_count": 3})
	n, err := c.CancelAllDownloads(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, srv.Count(http.MethodPost, "/downloads"))
}

// TestDownloadControlRequiresExplicitSuccess verifies that a control reply without success set to true is an error.
func TestDownloadControlRequiresExplicitSuccess(t *testing.T) {
	t.Parallel()

	srv := newFakeServer(t)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	srv.SetControlReply(map[string]any{"success": false, "message": "no such download"})
	err := c.CancelDownload(ctx, "x")
	assert.ErrorIs(t, err, ErrNotAcknowledged)
	assert.Contains(t, err.Error(), "no such download")

	srv.SetControlReply(map[string]any{"cancelled_count": 2})
	_, err = c.CancelAllDownloads(ctx)
	assert.ErrorIs(t, err, ErrNotAcknowledged)
}

// TestDownloadStatePredicates verifies that download states report whether they are terminal and successful.
func TestDownloadStatePredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, StateNotFound.Succeeded())
	assert.True(t, StateNotFound.Terminal())
	assert.False(t, StateNotFound.Failed())
	assert.True(t, StateEngineCreationFailed.Failed())
	assert.False(t, StateDownloading.Terminal())
	assert.False(t, StatePaused.Terminal())
	assert.False(t, StateUnknown.Terminal())
}
