package kolosal

import (
	"testing"
	"time"

	"github.com/mwiater/kolosalctl/internal/kolosaltest"
	"github.com/mwiater/kolosalctl/internal/transport"
)

func newFakeServer(t *testing.T) *kolosaltest.Server {
	t.Helper()
	srv := kolosaltest.New()
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	tr := transport.New(transport.Options{Timeout: 2 * time.Second, UserAgent: "kolosalctl/test"})
	return New(NewConnection(baseURL, "test-key"), tr, opts...)
}

type countingRecorder struct {
	checks    []bool
	polls     []string
	chunks    int
	malformed int
	spawns    []string
}

func (r *countingRecorder) HealthCheck(h bool)    { r.checks = append(r.checks, h) }
func (r *countingRecorder) DownloadPoll(s string) { r.polls = append(r.polls, s) }
func (r *countingRecorder) StreamChunk()          { r.chunks++ }
func (r *countingRecorder) StreamMalformed()      { r.malformed++ }
func (r *countingRecorder) ServerSpawn(o string)  { r.spawns = append(r.spawns, o) }
