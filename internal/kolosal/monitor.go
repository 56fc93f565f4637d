// internal/kolosal/monitor.go
package kolosal

import (
	"context"
	"time"

	"github.com/mwiater/kolosalctl/internal/logging"
	"golang.org/x/time/rate"
)

const (
	defaultMonitorTimeout = 30 * time.Minute
	monitorEventBuffer    = 16
)

// ProgressFunc observes each successful poll. It runs on the monitoring goroutine and
// must return promptly.
type ProgressFunc func(percentage float64, state DownloadState, downloaded, total int64)

// MonitorOptions tunes Monitor. Zero values take the defaults.
type MonitorOptions struct {
	// Interval between polls. Default 1s.
	Interval time.Duration
	// Timeout for the whole download, measured from the call. Default 30 minutes.
	Timeout time.Duration
}

func (o MonitorOptions) withDefaults() MonitorOptions {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultMonitorTimeout
	}
	return o
}

// Monitor polls the download for id until it reaches a terminal state, the timeout
// passes or ctx is cancelled. Failed polls are logged and retried. It returns nil for
// completed, creating_engine, engine_created and not_found, a *DownloadFailedError
// for failed, cancelled and engine_creation_failed, and a *TimeoutError when time
// runs out. Every other state keeps the loop going.
func (c *Client) Monitor(ctx context.Context, id string, onProgress ProgressFunc, opts MonitorOptions) error {
	opts = opts.withDefaults()
	log := logging.Logger().With().Str("engine", id).Logger()
	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	start := time.Now()

	for {
		if time.Since(start) > opts.Timeout {
			return &TimeoutError{Op: "download " + id, After: opts.Timeout}
		}
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return context.DeadlineExceeded
		}

		st, err := c.PollProgress(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.rec.DownloadPoll("error")
			log.Debug().Err(err).Msg("progress poll failed, retrying")
			continue
		}
		c.rec.DownloadPoll(string(st.State))

		if onProgress != nil {
			onProgress(st.Percentage, st.State, st.DownloadedBytes, st.TotalBytes)
		}

		switch {
		case st.State.Succeeded():
			log.Debug().Str("state", string(st.State)).Msg("download finished")
			return nil
		case st.State.Failed():
			return &DownloadFailedError{ID: id, State: st.State}
		}
	}
}

// MonitorEvents runs Monitor in its own goroutine. Observations are sent on the first
// channel and the final result on the second; both are closed when monitoring ends.
// Monitoring never waits for the events reader: when the buffer is full the oldest
// observation is dropped, so the newest one, including the terminal state, is always
// kept. Cancel ctx to stop early.
func (c *Client) MonitorEvents(ctx context.Context, id string, opts MonitorOptions) (<-chan DownloadStatus, <-chan error) {
	events := make(chan DownloadStatus, monitorEventBuffer)
	result := make(chan error, 1)

	go func() {
		err := c.Monitor(ctx, id, func(pct float64, state DownloadState, downloaded, total int64) {
			ev := DownloadStatus{ID: id, State: state, DownloadedBytes: downloaded, TotalBytes: total, Percentage: pct}
			for {
				select {
				case events <- ev:
					return
				default:
				}
				select {
				case <-events:
				default:
				}
			}
		}, opts)
		close(events)
		result <- err
		close(result)
	}()

	return events, result
}
