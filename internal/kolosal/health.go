// internal/kolosal/health.go
package kolosal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mwiater/kolosalctl/internal/logging"
)

const healthyStatus = "healthy"

// IsHealthy checks GET /v1/health. Any failure to reach or decode the endpoint means
// not healthy; it never returns an error.
func (c *Client) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	resp, err := c.http.Do(ctx, c.get("/v1/health", "/v1/health"))
	healthy := err == nil && parseHealth(resp.Body)
	c.rec.HealthCheck(healthy)
	if err != nil {
		logging.Logger().Debug().Err(err).Msg("health check failed")
	}
	return healthy
}

func parseHealth(body []byte) bool {
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Status == healthyStatus
}

// WaitForReady checks immediately and then once per check interval until the server is
// healthy. It returns a *TimeoutError once timeout has elapsed since the call began; the
// last check happens at that boundary, never before it.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	start := time.Now()
	for {
		if c.IsHealthy(ctx) {
			logging.Logger().Debug().Dur("after", time.Since(start)).Msg("server ready")
			return nil
		}
		elapsed := time.Since(start)
		if elapsed >= timeout {
			return &TimeoutError{Op: "wait for server readiness", After: timeout}
		}

		wait := c.checkInterval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
