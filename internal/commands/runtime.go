// internal/commands/runtime.go
package kolosalctl

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwiater/kolosalctl/internal/appconfig"
	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/metrics"
	"github.com/mwiater/kolosalctl/internal/persist"
	"github.com/mwiater/kolosalctl/internal/supervisor"
	"github.com/mwiater/kolosalctl/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// newPlatform supplies the process capabilities. Tests swap in a mock.
var newPlatform = supervisor.NativePlatform

// runtime is everything a command needs, built from the loaded config.
type runtime struct {
	cfg       *appconfig.Config
	client    *kolosal.Client
	sup       *supervisor.Supervisor
	collector *metrics.Collector
	out       io.Writer
	in        io.Reader
}

func newRuntime(cfg *appconfig.Config, out io.Writer, in io.Reader) *runtime {
	rt := &runtime{cfg: cfg, out: out, in: in}

	topts := transport.Options{
		Timeout:            cfg.RequestTimeout(),
		InsecureSkipVerify: cfg.InsecureTLS(),
		UserAgent:          "kolosalctl/" + appVersion,
	}
	var rec kolosal.Recorder
	if cfg.Metrics.Addr != "" {
		rt.collector = metrics.NewCollector()
		topts.Observer = rt.collector
		rec = rt.collector
	}

	rt.sup = supervisor.New(newPlatform(), supervisor.WithLogPath(cfg.ServerLogPath()))
	rt.client = kolosal.New(
		kolosal.NewConnection(cfg.BaseURL(), cfg.Server.APIKey),
		transport.New(topts),
		kolosal.WithSupervisor(rt.sup),
		kolosal.WithPersister(persist.NewYAML(cfg.ServerConfigYAML())),
		kolosal.WithRecorder(rec),
		kolosal.WithGeneration(kolosal.GenerationParams{
			MaxNewTokens: cfg.MaxNewTokens(),
			Temperature:  cfg.Temperature(),
			TopP:         cfg.TopP(),
		}),
	)
	return rt
}

func (rt *runtime) monitorOptions() kolosal.MonitorOptions {
	return kolosal.MonitorOptions{Interval: rt.cfg.PollInterval(), Timeout: rt.cfg.MonitorTimeout()}
}

// run builds a runtime from the loaded config and calls fn with a context that ends on
// SIGINT or SIGTERM. When a metrics address is configured the exporter runs alongside fn
// and stops when fn returns.
func run(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	return runWith(cmd, GetConfig(), fn)
}

// runWith is run for a config adjusted by command flags.
func runWith(cmd *cobra.Command, cfg *appconfig.Config, fn func(ctx context.Context, rt *runtime) error) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := newRuntime(cfg, cmd.OutOrStdout(), cmd.InOrStdin())

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if rt.collector != nil {
		g.Go(func() error { return rt.collector.Serve(runCtx, rt.cfg.Metrics.Addr) })
	}
	g.Go(func() error {
		defer cancel()
		return fn(runCtx, rt)
	})
	return g.Wait()
}
