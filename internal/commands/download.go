// internal/commands/download.go
package kolosalctl

import (
	"context"
	"fmt"

	"github.com/mwiater/kolosalctl/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var downloadCmd = &cobra.Command{
	Use:     "download",
	Aliases: []string{"downloads"},
	Short:   "Inspect and control model downloads running on the server",
}

var downloadStatusCmd = &cobra.Command{
	Use:   "status ENGINE_ID",
	Short: "Show the current progress of one download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			st, err := rt.client.PollProgress(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(rt.out, describeProgress(st.ID, st.Percentage, st.State, st.DownloadedBytes, st.TotalBytes))
			return nil
		})
	},
}

var downloadWatchCmd = &cobra.Command{
	Use:   "watch ENGINE_ID...",
	Short: "Follow one or more downloads until they finish",
	Long:  "Follow downloads until they finish. Ids may be given as separate arguments or comma separated.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := watchIDs(args)
		if len(ids) == 0 {
			return fmt.Errorf("no engine ids given")
		}
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			return watchDownloads(ctx, rt, ids)
		})
	},
}

// watchIDs flattens comma separated arguments and drops duplicates, keeping order.
func watchIDs(args []string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, arg := range args {
		for _, id := range util.SplitNonEmpty(arg, ",") {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// watchDownloads monitors every id concurrently. The first failure cancels the rest.
func watchDownloads(ctx context.Context, rt *runtime, ids []string) error {
	reporter := newProgressReporter(rt.out)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		onProgress := reporter.Track(id)
		g.Go(func() error {
			err := rt.client.Monitor(gctx, id, onProgress, rt.monitorOptions())
			reporter.Done(id, err)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			return nil
		})
	}
	err := g.Wait()
	reporter.Wait()
	return err
}

var downloadCancelCmd = &cobra.Command{
	Use:   "cancel ENGINE_ID",
	Short: "Cancel a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			if err := rt.client.CancelDownload(ctx, args[0]); err != nil {
				return err
			}
			printSuccess(rt.out, "cancelled %s", args[0])
			return nil
		})
	},
}

var downloadCancelAllCmd = &cobra.Command{
	Use:   "cancel-all",
	Short: "Cancel every active download",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			n, err := rt.client.CancelAllDownloads(ctx)
			if err != nil {
				return err
			}
			printSuccess(rt.out, "cancelled %d download(s)", n)
			return nil
		})
	},
}

var downloadPauseCmd = &cobra.Command{
	Use:   "pause ENGINE_ID",
	Short: "Pause a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			if err := rt.client.PauseDownload(ctx, args[0]); err != nil {
				return err
			}
			printSuccess(rt.out, "paused %s", args[0])
			return nil
		})
	},
}

var downloadResumeCmd = &cobra.Command{
	Use:   "resume ENGINE_ID",
	Short: "Resume a paused download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			if err := rt.client.ResumeDownload(ctx, args[0]); err != nil {
				return err
			}
			printSuccess(rt.out, "resumed %s", args[0])
			return nil
		})
	},
}

func init() {
	downloadCmd.AddCommand(
		downloadStatusCmd,
		downloadWatchCmd,
		downloadCancelCmd,
		downloadCancelAllCmd,
		downloadPauseCmd,
		downloadResumeCmd,
	)
	rootCmd.AddCommand(downloadCmd)
}
