package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"iris/internal/app"
	"iris/internal/chat"
	"iris/internal/i18n"

	"github.com/spf13/cobra"
)

// NewChatCmd opens the chat widget. With arguments it sends one message and
// prints the reply; otherwise it reads messages from stdin.
func NewChatCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the site assistant",
		Long: `Chat with the site assistant. Without arguments, each line read is sent as a message.
REPL commands: /lang <es|en> switches language, /quit exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			a, err := loadApp(ctx, *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			startMetrics(ctx, a.Config, metricsAddr, a.Logger)

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				a.Chat.Open()
				msg, err := a.Chat.Submit(ctx, strings.Join(args, " "))
				printMessage(out, a.I18n, msg)
				return err
			}
			return chatREPL(ctx, cmd.InOrStdin(), out, a.Chat, a.I18n)
		},
	}
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func chatREPL(ctx context.Context, in io.Reader, out io.Writer, w *chat.Widget, tr *i18n.Store) error {
	w.Open()
	printTranscript(out, tr, w.Transcript())

	sc := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, youStyle.Render(tr.T("chat.you")+"> "))
		if !sc.Scan() {
			_, _ = fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			w.Close()
			return nil
		case strings.HasPrefix(line, "/lang"):
			lang := strings.TrimSpace(strings.TrimPrefix(line, "/lang"))
			if err := tr.Set(lang); err != nil {
				_, _ = fmt.Fprintln(out, errStyle.Render(err.Error()))
				continue
			}
			printTranscript(out, tr, w.Transcript())
			continue
		}
		msg, err := w.Submit(ctx, line)
		if errors.Is(err, chat.ErrBusy) {
			continue
		}
		printMessage(out, tr, msg)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printTranscript(out io.Writer, tr *i18n.Store, msgs []chat.Message) {
	for _, m := range msgs {
		printMessage(out, tr, m)
	}
}

func printMessage(out io.Writer, tr *i18n.Store, m chat.Message) {
	if m.HTML == "" {
		return
	}
	if m.Sender == chat.SenderUser {
		_, _ = fmt.Fprintf(out, "%s %s\n", youStyle.Render(tr.T("chat.you")+":"), m.Text())
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", botStyle.Render(tr.T("chat.bot")+":"), m.Text())
}
