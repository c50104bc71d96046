//go:build !whisper

package asr

import (
	"context"
	"errors"

	"iris/internal/config"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when the binary was built without whisper.
var ErrUnavailable = errors.New("speech recognition requires building with -tags whisper")

// WhisperRecognizer is unavailable in this build.
type WhisperRecognizer struct{}

func newWhisperRecognizer(_ *config.Config, _ *logrus.Logger) (*WhisperRecognizer, error) {
	return nil, ErrUnavailable
}

func (*WhisperRecognizer) RequestAccess(context.Context) error { return ErrUnavailable }

func (*WhisperRecognizer) Listen(context.Context, chan<- Segment) error { return ErrUnavailable }

func (*WhisperRecognizer) Transcribe(context.Context, []float32) (string, error) {
	return "", ErrUnavailable
}

func (*WhisperRecognizer) Close() error { return nil }

func (*WhisperRecognizer) SetLanguage(string) {}
