package asr

import (
	"context"
	"strings"
	"time"

	"iris/internal/config"
	"iris/internal/logging"
)

// Segment is a recognized piece of text.
type Segment struct {
	Text       string
	Start      time.Time
	End        time.Time
	Confidence float64
	Partial    bool
}

// Recognizer turns captured speech into final segments. Listen blocks until
// ctx is done; when it returns no further segments are delivered. It may be
// called again after returning.
type Recognizer interface {
	Listen(ctx context.Context, out chan<- Segment) error
	Close() error
}

// Microphone asks for access to the capture device.
type Microphone interface {
	RequestAccess(ctx context.Context) error
}

// Transcriber converts a whole 16 kHz mono buffer to text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// SampleRate is the rate whisper expects.
const SampleRate = 16000

// NewRecognizer returns the whisper recognizer.
func NewRecognizer(cfg *config.Config, logger *logging.Logger) (*WhisperRecognizer, error) {
	return newWhisperRecognizer(cfg, logger)
}

// DeviceMatches reports whether a capture device called name satisfies the
// configured audio.device_name. An empty preference matches nothing.
func DeviceMatches(name, preferred string) bool {
	return preferred != "" && strings.Contains(strings.ToLower(name), strings.ToLower(preferred))
}
