package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"iris/internal/app"
	"iris/internal/control"
	"iris/internal/i18n"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "iris",
		Short: "Iris: AI Lab Mind site assistant from the terminal",
		Long: `Iris talks to the AI Lab Mind assistant stack: chat and voice calls with Iris, the blog,
contact and newsletter forms, and cookie preferences.

Key commands:
  call [--text]             Voice call with the assistant (Esc or /end hangs up)
  chat [message]            Chat widget (REPL without arguments)
  blog list|show|categories Read the blog
  open <fragment>           Resolve #home, #blog, #post?id=3 ...
  contact|newsletter        Submit the site forms
  consent show|accept-all|reject-all|accept-all-modal|save
  lang [es|en]              Interface language
  mic|models|setup|doctor   Voice setup and checks

Notable flags/env:
  --metrics-addr <addr>     Enable /metrics (Prometheus text) on call/chat
  Env overrides: IRIS_LANG, IRIS_SECRET, IRIS_CHAT_WEBHOOK_URL, IRIS_FORMS_WEBHOOK_URL,
                 IRIS_VOICE_URL, IRIS_PLAYER_COMMAND, IRIS_LOG_LEVEL/FORMAT, IRIS_METRICS_ADDR`,
		Example: `  iris call --text
  iris chat "¿Qué servicios ofrecéis?"
  iris blog list --category IA
  iris open "#post?id=3"
  iris consent accept-all-modal --newsletter
  iris newsletter ana@example.com`,
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("Iris v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/iris/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(control.NewCallCmd(cfgPath))
	root.AddCommand(control.NewChatCmd(cfgPath))
	root.AddCommand(control.NewBlogCmd(cfgPath))
	root.AddCommand(control.NewOpenCmd(cfgPath))
	root.AddCommand(control.NewContactCmd(cfgPath))
	root.AddCommand(control.NewNewsletterCmd(cfgPath))
	root.AddCommand(control.NewConsentCmd(cfgPath))
	root.AddCommand(control.NewLangCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#EF4444")).
			Padding(1, 2).
			Width(72)
	panelTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	panelCode  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// reportError prints startup failures as a diagnostic panel and anything
// else as a plain error line.
func reportError(w io.Writer, err error) {
	var se *app.StartupError
	if !errors.As(err, &se) {
		_, _ = fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	tr, terr := i18n.New(os.Getenv("IRIS_LANG"))
	if terr != nil {
		_, _ = fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		panelTitle.Render(tr.T("app.start-failed")),
		"",
		tr.T("app.start-failed-detail"),
		panelCode.Render(se.Error()),
	)
	_, _ = fmt.Fprintln(w, panelStyle.Render(body))
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sIris%s: AI Lab Mind site assistant from the terminal %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sChat, call, read the blog and send the site forms.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  iris [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  call [--text]               voice call (Esc, /end or Ctrl-D hangs up)")
		writeln("  chat [message]              chat with Iris (REPL: /lang en, /quit)")
		writeln("  blog list|show|categories   read the blog")
		writeln("  open <fragment>             #home, #blog, #post?id=3 ...")
		writeln("  contact|newsletter          submit the site forms")
		writeln("  consent ...                 cookie preferences")
		writeln("  lang [es|en]                interface language")
		writeln("  mic list|set                select input device (alias: microphone, mics)")
		writeln("  setup                       write ringtone, download default whisper model")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  doctor                      check config/endpoints/player/portaudio")
		writeln("  tail-log                    show last log lines")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus) on call/chat")
		writeln("  -c, --config <path>     config file (default ~/.config/iris/config.toml)")
		writeln("  Env: IRIS_LANG=en, IRIS_SECRET=..., IRIS_VOICE_URL=wss://...,")
		writeln("       IRIS_PLAYER_COMMAND=mpv, IRIS_LOG_LEVEL=debug, IRIS_LOG_FORMAT=json")
		writeln("  A .env file in the working directory is loaded first.")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  iris call --text")
		writeln("  iris chat \"¿Qué servicios ofrecéis?\"")
		writeln("  iris blog list --category IA")
		writeln("  iris open \"#post?id=3\"")
		writeln("  iris consent save --performance --functional")
		writeln("  iris contact --name \"Ana Pérez\" --email ana@example.com -m \"Hola\"")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
