// internal/commands/chat.go
package kolosalctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mwiater/kolosalctl/internal/logging"
	"github.com/mwiater/kolosalctl/internal/providerfactory"
	"github.com/mwiater/kolosalctl/internal/providers"
	"github.com/spf13/cobra"
)

// chatCmd represents the 'chat' command, which talks to a loaded engine.
var chatCmd = &cobra.Command{
	Use:   "chat ENGINE_ID [MESSAGE]",
	Short: "Chat with an engine",
	Long: `Send MESSAGE to the engine and print the reply as it streams in. Without MESSAGE,
read prompts from stdin one line at a time until EOF or /exit.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		noStream, _ := cmd.Flags().GetBool("no-stream")
		provider, _ := cmd.Flags().GetString("provider")
		return run(cmd, func(ctx context.Context, rt *runtime) error {
			session, err := newChatSession(rt, args[0], provider, !noStream && !rt.cfg.Chat.NoStream)
			if err != nil {
				return err
			}
			defer session.provider.Close()

			if len(args) == 2 {
				return session.send(ctx, args[1])
			}
			return session.repl(ctx, rt.in)
		})
	},
}

type chatSession struct {
	provider providers.ChatProvider
	model    string
	stream   bool
	out      io.Writer
}

func newChatSession(rt *runtime, model, providerName string, stream bool) (*chatSession, error) {
	cfg := *rt.cfg
	if providerName != "" {
		cfg.Chat.Provider = providerName
	}
	p, err := providerfactory.NewChatProvider(&cfg, rt.client, rt.collector)
	if err != nil {
		return nil, err
	}
	return &chatSession{provider: p, model: model, stream: stream, out: rt.out}, nil
}

// send runs one exchange and prints the reply.
func (s *chatSession) send(ctx context.Context, message string) error {
	req := providers.StreamRequest{Model: s.model, Message: message}
	if !s.stream {
		reply, err := s.provider.Complete(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, reply)
		return nil
	}

	return s.provider.Stream(ctx, req, providers.StreamCallbacks{
		OnChunk: func(c providers.Chunk) error {
			_, err := io.WriteString(s.out, c.Text)
			return err
		},
		OnComplete: func(meta providers.StreamMetadata) error {
			fmt.Fprintln(s.out)
			if meta.ServerError != "" {
				printWarn(s.out, "server reported: %s", meta.ServerError)
			}
			fmt.Fprintln(s.out, faintText(fmt.Sprintf("[%.1f tok/s | ttft %.0f ms]", meta.TPS, meta.TTFT)))
			return nil
		},
	})
}

// repl reads one prompt per line. A failed exchange is reported and the loop goes on.
func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	fmt.Fprintf(s.out, "chatting with %s; /exit to quit\n", s.model)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}
		if err := s.send(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Logger().Debug().Err(err).Str("engine", s.model).Msg("chat exchange failed")
			printError(s.out, "%v", err)
		}
	}
}

func init() {
	chatCmd.Flags().Bool("no-stream", false, "wait for the whole reply instead of streaming")
	chatCmd.Flags().String("provider", "", "chat backend: kolosal or openai (default from config)")
	rootCmd.AddCommand(chatCmd)
}
