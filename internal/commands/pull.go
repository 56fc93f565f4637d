// internal/commands/pull.go
package kolosalctl

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/spf13/cobra"
)

const modelHost = "https://huggingface.co"

// pullCmd downloads a model through the server and registers it as an engine.
var pullCmd = &cobra.Command{
	Use:   "pull REPO FILE",
	Short: "Download a GGUF model through the server and register it as an engine",
	Long: `Pull makes sure the server is running, registers REPO/FILE as an engine and follows
the download until the engine exists. Interrupting the command cancels the download on the
server. Afterwards a chat session is opened unless --no-chat is given.

Example:
  kolosalctl pull Qwen/Qwen2.5-0.5B-Instruct-GGUF qwen2.5-0.5b-instruct-q4_k_m.gguf --quant Q4_K_M`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		quant, _ := cmd.Flags().GetString("quant")
		noChat, _ := cmd.Flags().GetBool("no-chat")
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			engineID, err := pullModel(ctx, rt, args[0], args[1], quant)
			if err != nil {
				return err
			}
			if noChat {
				return nil
			}
			session, err := newChatSession(rt, engineID, "", !rt.cfg.Chat.NoStream)
			if err != nil {
				return err
			}
			defer session.provider.Close()
			return session.repl(ctx, rt.in)
		})
	},
}

// pullTarget is what a repo and file resolve to.
type pullTarget struct {
	EngineID  string
	URL       string
	LocalPath string
}

// resolvePullTarget derives the engine id "<model>:<quant>", where model is the repo
// without its owner and quant defaults to the file name without .gguf.
func resolvePullTarget(repo, file, quant string) (pullTarget, error) {
	repo = strings.Trim(strings.TrimSpace(repo), "/")
	file = strings.TrimSpace(file)
	if repo == "" || file == "" {
		return pullTarget{}, errors.New("repository and file are both required")
	}
	model := repo
	if _, after, ok := strings.Cut(repo, "/"); ok {
		model = after
	}
	if quant == "" {
		quant = strings.TrimSuffix(path.Base(file), ".gguf")
	}
	return pullTarget{
		EngineID:  model + ":" + quant,
		URL:       modelHost + "/" + repo + "/resolve/main/" + file,
		LocalPath: "./models/" + file,
	}, nil
}

func pullModel(ctx context.Context, rt *runtime, repo, file, quant string) (string, error) {
	target, err := resolvePullTarget(repo, file, quant)
	if err != nil {
		return "", err
	}

	if err := rt.client.EnsureServer(ctx, rt.cfg.Server.Path, rt.cfg.ServerPort(), rt.cfg.ReadyTimeout()); err != nil {
		return "", fmt.Errorf("unable to reach kolosal-server: %w", err)
	}

	submitted, err := rt.client.RegisterEngine(ctx, kolosal.EngineRegistration{
		EngineID:  target.EngineID,
		SourceURL: target.URL,
		LocalPath: target.LocalPath,
	})
	if err != nil {
		return "", err
	}
	if !submitted {
		printSuccess(rt.out, "engine %s already exists; model is ready to use", target.EngineID)
		return target.EngineID, nil
	}

	reporter := newProgressReporter(rt.out)
	err = rt.client.Monitor(ctx, target.EngineID, reporter.Track(target.EngineID), rt.monitorOptions())
	reporter.Done(target.EngineID, err)
	reporter.Wait()

	if err != nil {
		if ctx.Err() != nil {
			cancelInterrupted(rt, target.EngineID)
		}
		return "", err
	}
	printSuccess(rt.out, "model downloaded and registered as %s", target.EngineID)
	return target.EngineID, nil
}

// cancelInterrupted asks the server to drop a download the user walked away from.
func cancelInterrupted(rt *runtime, engineID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.client.CancelDownload(ctx, engineID); err != nil {
		logging.Logger().Warn().Err(err).Str("engine", engineID).Msg("could not cancel interrupted download")
		printWarn(rt.out, "download of %s may still be running on the server", engineID)
		return
	}
	printWarn(rt.out, "download of %s cancelled", engineID)
}

func init() {
	pullCmd.Flags().String("quant", "", "quantization label for the engine id (default: file name)")
	pullCmd.Flags().Bool("no-chat", false, "do not open a chat session afterwards")
	rootCmd.AddCommand(pullCmd)
}
