package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"iris/internal/app"
	"iris/internal/asr"
	"iris/internal/i18n"
	"iris/internal/voice"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const hangupCommand = "/end"

// NewCallCmd places a voice call with the assistant.
func NewCallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Call the voice assistant",
		Long: `Call the voice assistant. Speech is captured from the microphone (build with
-tags whisper) and replies are played through the configured player. Press Esc to hang up.

With --text, each line typed is sent as an utterance; type /end or Ctrl-D to hang up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			startMetrics(ctx, a.Config, metricsAddr, a.Logger)

			textMode, _ := cmd.Flags().GetBool("text")
			out := cmd.OutOrStdout()
			var (
				mic    asr.Microphone
				rec    asr.Recognizer
				hangup <-chan struct{}
				eol    = "\n"
			)
			if textMode {
				lines, typedHangup := textInput(cmd.InOrStdin())
				mic, rec, hangup = lines, lines, typedHangup
				_, _ = fmt.Fprintln(out, dimStyle.Render("type to talk, "+hangupCommand+" to hang up"))
			} else {
				w, err := asr.NewRecognizer(a.Config, a.Logger)
				if err != nil {
					return fmt.Errorf("%w (use --text to type instead)", err)
				}
				defer w.Close()
				w.SetLanguage(a.I18n.Lang())
				unsub := a.I18n.Subscribe(w.SetLanguage)
				defer unsub()
				mic, rec = w, w

				esc, restore, err := watchEscape(os.Stdin)
				if err != nil {
					return err
				}
				defer restore()
				if esc != nil {
					hangup = esc
					eol = "\r\n"
				}
				_, _ = fmt.Fprint(out, dimStyle.Render("press Esc to hang up")+eol)
			}

			p := newCallPrinter(out, a.I18n, eol)
			session, err := a.NewCall(mic, rec, p.update)
			if err != nil {
				return err
			}
			return runCall(ctx, session, p, hangup)
		},
	}
	cmd.Flags().Bool("text", false, "type utterances instead of using the microphone")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// runCall drives one call to completion. hangup may be nil.
func runCall(ctx context.Context, s *voice.Session, p *callPrinter, hangup <-chan struct{}) error {
	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(runCtx) }()
	s.Start()

	select {
	case <-p.done:
	case <-hangup:
		s.End(true)
		select {
		case <-p.done:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}
	cancel()
	if err := <-errCh; err != nil && ctx.Err() == nil {
		return err
	}
	return p.err
}

// textInput splits stdin into utterances and the hang-up signal.
func textInput(r io.Reader) (*asr.LineRecognizer, <-chan struct{}) {
	pr, pw := io.Pipe()
	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		defer pw.Close()
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := sc.Text()
			if strings.TrimSpace(line) == hangupCommand {
				return
			}
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
	}()
	return asr.NewLineRecognizer(pr), hangup
}

// watchEscape puts the terminal in raw mode and signals on Esc, q or
// Ctrl-C. It returns a nil channel when stdin is not a terminal.
func watchEscape(in *os.File) (<-chan struct{}, func(), error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, func() {}, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("raw terminal: %w", err)
	}
	ch := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if err != nil {
				return
			}
			if n == 1 && (buf[0] == 0x1b || buf[0] == 'q' || buf[0] == 0x03) {
				close(ch)
				return
			}
		}
	}()
	return ch, func() { _ = term.Restore(fd, old) }, nil
}

// callPrinter renders session updates and reports when the call is over.
type callPrinter struct {
	out io.Writer
	tr  *i18n.Store
	eol string

	mu           sync.Mutex
	active       bool
	lastState    voice.State
	lastStatus   string
	instructions string

	once sync.Once
	done chan struct{}
	err  error
}

func newCallPrinter(out io.Writer, tr *i18n.Store, eol string) *callPrinter {
	return &callPrinter{out: out, tr: tr, eol: eol, done: make(chan struct{})}
}

func (p *callPrinter) update(u voice.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if u.StatusKey != p.lastStatus || (u.State != p.lastState && u.State != voice.Idle) {
		style := botStyle
		if u.StatusKey == voice.KeyError || u.StatusKey == voice.KeyMicDenied {
			style = errStyle
		}
		_, _ = fmt.Fprintf(p.out, "%s %s%s", dimStyle.Render(fmt.Sprintf("[%-10s]", u.State)), style.Render(p.tr.T(u.StatusKey)), p.eol)
		p.lastStatus, p.lastState = u.StatusKey, u.State
	}
	if u.InstructionsKey != "" && u.InstructionsKey != p.instructions {
		p.instructions = u.InstructionsKey
		_, _ = fmt.Fprint(p.out, p.tr.T(u.InstructionsKey)+p.eol)
	}

	switch {
	case u.State != voice.Idle:
		p.active = true
	case u.StatusKey == voice.KeyMicDenied:
		p.finish(u.Err)
	case p.active && !u.PanelOpen:
		p.finish(nil)
	}
}

func (p *callPrinter) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}
