package kolosalctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/kolosalctl/internal/kolosaltest"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/supervisor"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// resetFlags restores every flag in the command tree to its default so state does
// not leak between executions of the shared rootCmd.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kolosalctl.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

type harness struct {
	t      *testing.T
	srv    *kolosaltest.Server
	mock   *supervisor.MockPlatform
	config string
	stdin  string
}

func newHarness(t *testing.T, extraConfig string) *harness {
	t.Helper()
	srv := kolosaltest.New()
	t.Cleanup(srv.Close)

	serverYAML := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(serverYAML, []byte("models:\n"), 0o644); err != nil {
		t.Fatalf("write server config: %v", err)
	}

	cfg := "server:\n  url: " + srv.URL + "\n  ready_timeout: 2\n  config_yaml: " + serverYAML +
		"\ndownload:\n  interval_ms: 10\nlog:\n  level: error\n" + extraConfig

	h := &harness{t: t, srv: srv, mock: &supervisor.MockPlatform{}, config: writeTempConfig(t, cfg)}

	prevPlatform := newPlatform
	newPlatform = func() supervisor.Platform { return h.mock }
	t.Cleanup(func() {
		newPlatform = prevPlatform
		currentConfig = nil
		viper.SetConfigFile("")
		_ = logging.Close()
	})
	return h
}

// run executes the root command with args and returns everything written to out.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	return h.runContext(context.Background(), args...)
}

// runContext executes the root command under ctx, standing in for an interrupt.
func (h *harness) runContext(ctx context.Context, args ...string) (string, error) {
	h.t.Helper()
	resetFlags(rootCmd)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(h.stdin))
	full := append([]string{"--config", h.config, "--env-file", filepath.Join(h.t.TempDir(), "missing.env")}, args...)
	rootCmd.SetArgs(full)
	h.t.Cleanup(func() { rootCmd.SetArgs([]string{}) })

	_, err := rootCmd.ExecuteContextC(ctx)
	return buf.String(), err
}
