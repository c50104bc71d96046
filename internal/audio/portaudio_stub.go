//go:build !whisper

package audio

import (
	"errors"

	"github.com/sirupsen/logrus"
)

func newPortAudioPlayer(_ *logrus.Logger) (Player, error) {
	return nil, errors.New("portaudio playback requires building with -tags whisper")
}
