//go:build !whisper

package control

import (
	"iris/internal/config"

	"github.com/spf13/cobra"
)

func newMicListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List input devices and mark the one calls will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Audio.DeviceName != "" {
				cmd.Printf("configured device: %q\n", cfg.Audio.DeviceName)
			}
			cmd.Println("build with '-tags whisper' to enable microphone listing (PortAudio required)")
			return nil
		},
	}
}
