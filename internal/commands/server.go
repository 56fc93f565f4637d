// internal/commands/server.go
package kolosalctl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// serverCmd groups the server lifecycle commands.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the local kolosal-server process",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start kolosal-server unless it is already running",
	Long: `Start launches kolosal-server detached from this terminal. A server that already
answers its health check, or a server process that is still starting, is left alone.
With --wait the command blocks until the server reports healthy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		port, _ := cmd.Flags().GetInt("port")
		wait, _ := cmd.Flags().GetBool("wait")

		cfg := GetConfig()
		if port != 0 {
			adjusted, err := cfg.WithPort(port)
			if err != nil {
				return err
			}
			cfg = &adjusted
		}
		return runWith(cmd, cfg, func(ctx context.Context, rt *runtime) error {
			if rt.client.IsHealthy(ctx) {
				printSuccess(rt.out, "server already running at %s", rt.cfg.BaseURL())
				return nil
			}
			if path == "" {
				path = rt.cfg.Server.Path
			}
			port := rt.cfg.ServerPort()
			if wait {
				if err := rt.client.EnsureServer(ctx, path, port, rt.cfg.ReadyTimeout()); err != nil {
					return err
				}
				printSuccess(rt.out, "server ready at %s", rt.cfg.BaseURL())
				return nil
			}
			if err := rt.client.StartServer(ctx, path, port); err != nil {
				return err
			}
			printSuccess(rt.out, "server start requested (log: %s)", rt.cfg.ServerLogPath())
			return nil
		})
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kolosal-server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			h, err := rt.client.StopServer(ctx)
			if err != nil {
				return err
			}
			if h == nil {
				printWarn(rt.out, "no kolosal-server process found")
				return nil
			}
			printSuccess(rt.out, "stopped kolosal-server (pid %d)", h.PID)
			return nil
		})
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and process state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			health := badStyle.Render("unreachable")
			if rt.client.IsHealthy(ctx) {
				health = okStyle.Render("healthy")
			}
			process := "not running"
			if h, err := rt.sup.FindRunningInstance(ctx); err != nil {
				process = "unknown (" + err.Error() + ")"
			} else if h != nil {
				process = "pid " + strconv.Itoa(h.PID)
			}
			fmt.Fprintln(rt.out, panel("kolosal-server", [][2]string{
				{"URL", rt.cfg.BaseURL()},
				{"Health", health},
				{"Process", process},
				{"Log", rt.cfg.ServerLogPath()},
			}))
			return nil
		})
	},
}

var serverWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until the server reports healthy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, _ := cmd.Flags().GetInt("timeout")
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			timeout := rt.cfg.ReadyTimeout()
			if seconds > 0 {
				timeout = time.Duration(seconds) * time.Second
			}
			if err := rt.client.WaitForReady(ctx, timeout); err != nil {
				return err
			}
			printSuccess(rt.out, "server ready at %s", rt.cfg.BaseURL())
			return nil
		})
	},
}

func init() {
	serverStartCmd.Flags().String("path", "", "server executable (default: search next to kolosalctl, then PATH)")
	serverStartCmd.Flags().Int("port", 0, "port to start the server on and to check health at (default from config)")
	serverStartCmd.Flags().Bool("wait", false, "wait for the server to become healthy")
	serverWaitCmd.Flags().Int("timeout", 0, "seconds to wait (default from config)")

	serverCmd.AddCommand(serverStartCmd, serverStopCmd, serverStatusCmd, serverWaitCmd)
	rootCmd.AddCommand(serverCmd)
}
