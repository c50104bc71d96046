//go:build whisper

package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

const framesPerBuffer = 1024

type portAudioPlayer struct {
	logger *logrus.Logger
}

func newPortAudioPlayer(logger *logrus.Logger) (Player, error) {
	return &portAudioPlayer{logger: logger}, nil
}

// Play decodes the clip and writes it to the default output device.
func (p *portAudioPlayer) Play(ctx context.Context, c Clip) error {
	pcm, err := Decode(c)
	if err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]int16, framesPerBuffer*pcm.Channels)
	stream, err := portaudio.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), framesPerBuffer, &buf)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(pcm.Samples); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, pcm.Samples[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			if err == portaudio.OutputUnderflowed {
				p.logger.Warn("output underflow")
				continue
			}
			return fmt.Errorf("stream write: %w", err)
		}
	}
	return nil
}
