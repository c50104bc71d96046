package control

import (
	"fmt"
	"os"
	"path/filepath"

	"iris/internal/audio"
	"iris/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd writes the ringtone and downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the ringtone and download the whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ringtone := os.ExpandEnv(cfg.Voice.RingtonePath)
			if _, err := os.Stat(ringtone); err == nil {
				_, _ = fmt.Fprintln(out, "ringtone already present at", ringtone)
			} else {
				if err := audio.WriteRingtone(ringtone); err != nil {
					return fmt.Errorf("write ringtone: %w", err)
				}
				_, _ = fmt.Fprintln(out, "ringtone written to", ringtone)
			}

			if skip, _ := cmd.Flags().GetBool("skip-model"); skip {
				return nil
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if _, err := os.Stat(modelPath); err == nil {
				_, _ = fmt.Fprintln(out, "model already present at", modelPath)
				return nil
			}
			url, ok := modelRegistry[filepath.Base(modelPath)]
			if !ok {
				url = modelRegistry[defaultModel]
			}
			if err := downloadFile(cmd.Context(), out, url, modelPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "model download complete")
			return nil
		},
	}
	cmd.Flags().Bool("skip-model", false, "only write the ringtone")
	return cmd
}
