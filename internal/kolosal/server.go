// internal/kolosal/server.go
package kolosal

import (
	"context"
	"strconv"
	"time"

	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/supervisor"
)

// StartServer makes sure a server process exists. A healthy server, or a running
// process that is still starting up, is left alone. Otherwise the binary is located
// from path and spawned detached. It does not wait for readiness.
func (c *Client) StartServer(ctx context.Context, path string, port int) error {
	if c.IsHealthy(ctx) {
		logging.Logger().Debug().Str("url", c.conn.BaseURL).Msg("server already healthy")
		return nil
	}
	if c.sup == nil {
		return ErrNoSupervisor
	}

	h, err := c.sup.FindRunningInstance(ctx)
	if err != nil {
		logging.Logger().Debug().Err(err).Msg("process discovery failed")
	} else if h != nil {
		logging.Logger().Info().Int("pid", h.PID).Msg("server process running but not healthy yet")
		return nil
	}

	bin, found := c.sup.LocateExecutable(path)
	if !found {
		logging.Logger().Info().Str("name", bin).Msg("server binary not found nearby, relying on PATH")
	}
	var args []string
	if port > 0 && port != defaultServerPort {
		args = append(args, "--port", strconv.Itoa(port))
	}

	if _, err := c.sup.Spawn(ctx, bin, args...); err != nil {
		c.rec.ServerSpawn("error")
		return err
	}
	c.rec.ServerSpawn("started")
	return nil
}

// EnsureServer starts the server if needed and waits up to readyTimeout for it to
// report healthy.
func (c *Client) EnsureServer(ctx context.Context, path string, port int, readyTimeout time.Duration) error {
	if err := c.StartServer(ctx, path, port); err != nil {
		return err
	}
	return c.WaitForReady(ctx, readyTimeout)
}

// StopServer terminates the running server and returns the process it stopped.
// Nothing running counts as stopped and yields a nil handle.
func (c *Client) StopServer(ctx context.Context) (*supervisor.Handle, error) {
	if c.sup == nil {
		return nil, ErrNoSupervisor
	}
	return c.sup.Stop(ctx)
}
