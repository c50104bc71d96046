package control

import (
	"fmt"
	"strings"

	"iris/internal/app"
	"iris/internal/asr"
	"iris/internal/audio"

	"github.com/spf13/cobra"
)

// NewTranscribeCmd transcribes a WAV file and optionally sends the text to the chat.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file (build with -tags whisper)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *cfgPath, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			samples, err := audio.ReadWAVMono(args[0], asr.SampleRate)
			if err != nil {
				return err
			}
			rec, err := asr.NewRecognizer(a.Config, a.Logger)
			if err != nil {
				return err
			}
			defer rec.Close()
			if lang, _ := cmd.Flags().GetString("lang"); lang != "" {
				rec.SetLanguage(lang)
			}
			txt, err := rec.Transcribe(cmd.Context(), samples)
			if err != nil {
				return err
			}
			txt = strings.TrimSpace(txt)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, txt)

			if send, _ := cmd.Flags().GetBool("chat"); !send {
				return nil
			}
			if txt == "" {
				return fmt.Errorf("nothing recognized; not sending")
			}
			a.Chat.Open()
			msg, err := a.Chat.Submit(cmd.Context(), txt)
			printMessage(out, a.I18n, msg)
			return err
		},
	}
	cmd.Flags().Bool("chat", false, "also send the transcript as a chat message")
	cmd.Flags().String("lang", "", "recognition language (default: asr.language or site language)")
	return cmd
}
