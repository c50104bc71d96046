//go:build whisper

package control

import (
	"fmt"
	"runtime"

	"iris/internal/config"

	"github.com/gordonklaus/portaudio"
	"github.com/spf13/cobra"
)

func newMicListCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List input devices and mark the one calls will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := portaudio.Initialize(); err != nil {
				return fmt.Errorf("portaudio init: %w", err)
			}
			defer portaudio.Terminate()

			devs, err := portaudio.Devices()
			if err != nil {
				return err
			}
			def, _ := portaudio.DefaultInputDevice()
			mics := []micInfo{}
			for i, d := range devs {
				if d.MaxInputChannels < 1 {
					continue
				}
				mics = append(mics, micInfo{
					Index:     i,
					Name:      d.Name,
					Channels:  d.MaxInputChannels,
					LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
					Default:   def != nil && d.Name == def.Name,
				})
			}
			if len(mics) == 0 && !jsonOut {
				cmd.Println("no input devices found")
				if runtime.GOOS == "darwin" {
					cmd.Println("tip: install PortAudio with brew install portaudio")
				}
				return nil
			}
			return writeMicList(cmd.OutOrStdout(), mics, cfg.Audio.DeviceName, jsonOut)
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}
