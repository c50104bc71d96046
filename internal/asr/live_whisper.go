//go:build whisper

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"iris/internal/audio"
	"iris/internal/config"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/gordonklaus/portaudio"
	vad "github.com/maxhawkins/go-webrtcvad"
	"github.com/sirupsen/logrus"
)

// WhisperRecognizer captures audio, runs VAD, then transcribes with whisper.cpp.
// The model stays loaded across Listen calls so recognition can be paused
// for playback and resumed cheaply.
type WhisperRecognizer struct {
	cfg    *config.Config
	logger *logrus.Logger
	model  whisper.Model
	vad    *vad.VAD

	mu sync.Mutex // one Listen or Transcribe at a time

	langMu sync.Mutex
	lang   string
}

func newWhisperRecognizer(cfg *config.Config, logger *logrus.Logger) (*WhisperRecognizer, error) {
	if cfg.Audio.Channels != 1 {
		return nil, fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	if cfg.Audio.FrameMS != 10 && cfg.Audio.FrameMS != 20 && cfg.Audio.FrameMS != 30 {
		return nil, fmt.Errorf("audio.frame_ms must be 10, 20, or 30 (got %d)", cfg.Audio.FrameMS)
	}
	switch cfg.Audio.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("sample_rate must be 8k/16k/32k/48k for webrtc VAD (got %d)", cfg.Audio.SampleRate)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	model, err := whisper.New(cfg.ASR.ModelPath)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("load model: %w", err)
	}
	v, err := vad.New()
	if err != nil {
		model.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("vad: %w", err)
	}
	if err := v.SetMode(cfg.VAD.Aggressiveness); err != nil {
		model.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("vad mode: %w", err)
	}
	lang := strings.TrimSpace(cfg.ASR.Language)
	if lang == "" {
		lang = cfg.Site.Lang
	}
	return &WhisperRecognizer{
		cfg:    cfg,
		logger: logger,
		model:  model,
		vad:    v,
		lang:   lang,
	}, nil
}

// SetLanguage switches the recognition language for the next segment.
func (r *WhisperRecognizer) SetLanguage(lang string) {
	r.langMu.Lock()
	r.lang = lang
	r.langMu.Unlock()
}

// RequestAccess verifies an input device can be opened.
func (r *WhisperRecognizer) RequestAccess(ctx context.Context) error {
	dev, err := selectDevice(r.cfg.Audio.DeviceName)
	if err != nil {
		return err
	}
	buf := make([]int16, r.frameSamples())
	stream, err := r.openStream(dev, &buf)
	if err != nil {
		return err
	}
	return stream.Close()
}

func (r *WhisperRecognizer) frameSamples() int {
	return r.cfg.Audio.SampleRate * r.cfg.Audio.FrameMS / 1000
}

func (r *WhisperRecognizer) openStream(dev *portaudio.DeviceInfo, buf *[]int16) (*portaudio.Stream, error) {
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: r.cfg.Audio.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(r.cfg.Audio.SampleRate),
		FramesPerBuffer: len(*buf),
	}, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return stream, nil
}

func (r *WhisperRecognizer) Listen(ctx context.Context, out chan<- Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, err := selectDevice(r.cfg.Audio.DeviceName)
	if err != nil {
		return err
	}

	frameSamples := r.frameSamples()
	if ok := r.vad.ValidRateAndFrameLength(r.cfg.Audio.SampleRate, frameSamples); !ok {
		return fmt.Errorf("invalid frame_ms %d for sample_rate %d", r.cfg.Audio.FrameMS, r.cfg.Audio.SampleRate)
	}

	buf := make([]int16, frameSamples)
	stream, err := r.openStream(dev, &buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	segments := make(chan []int16, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.transcribeWorker(ctx, segments, out)
	}()
	defer wg.Wait()
	defer close(segments)

	var (
		chunk       []int16
		inSpeech    bool
		lastVoice   time.Time
		speechBegan time.Time
		silenceDur  = time.Duration(r.cfg.VAD.SilenceMS) * time.Millisecond
		maxSegDur   = time.Duration(r.cfg.VAD.MaxSegmentMS) * time.Millisecond
		minSpeech   = r.cfg.Audio.SampleRate * r.cfg.VAD.MinSpeechMS / 1000
	)

	r.logger.Debugf("listening on mic: %s @ %d Hz", dev.Name, r.cfg.Audio.SampleRate)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				r.logger.Warn("input overflow")
				continue
			}
			return fmt.Errorf("stream read: %w", err)
		}
		voice, err := r.vad.Process(r.cfg.Audio.SampleRate, int16Bytes(buf))
		if err != nil {
			return fmt.Errorf("vad: %w", err)
		}

		if voice {
			if !inSpeech {
				inSpeech = true
				speechBegan = time.Now()
				chunk = chunk[:0]
			}
			chunk = append(chunk, buf...)
			lastVoice = time.Now()
		} else if inSpeech {
			now := time.Now()
			if (now.Sub(lastVoice) >= silenceDur && len(chunk) > 0) ||
				(maxSegDur > 0 && now.Sub(speechBegan) >= maxSegDur) {
				if len(chunk) >= minSpeech {
					cpy := make([]int16, len(chunk))
					copy(cpy, chunk)
					select {
					case segments <- cpy:
					default:
						r.logger.Warn("segment queue full, dropping segment")
					}
				}
				inSpeech = false
				chunk = chunk[:0]
			}
		}
	}
}

func int16Bytes(in []int16) []byte {
	out := make([]byte, 2*len(in))
	for i, s := range in {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

func (r *WhisperRecognizer) transcribeWorker(ctx context.Context, segs <-chan []int16, out chan<- Segment) {
	for data := range segs {
		if ctx.Err() != nil {
			continue
		}
		samples := make([]float32, len(data))
		for i, s := range data {
			samples[i] = float32(s) / 32768.0
		}
		if r.cfg.Audio.SampleRate != SampleRate {
			samples = audio.Resample(samples, r.cfg.Audio.SampleRate, SampleRate)
		}
		text, err := r.transcribe(samples)
		if err != nil {
			r.logger.Errorf("transcribe: %v", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		seg := Segment{
			Text:  strings.TrimSpace(text),
			Start: time.Now(), // approximate; audio timestamps not tracked
			End:   time.Now(),
		}
		select {
		case out <- seg:
		case <-ctx.Done():
		}
	}
}

// Transcribe runs whisper over a complete 16 kHz mono buffer.
func (r *WhisperRecognizer) Transcribe(ctx context.Context, samples []float32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.transcribe(samples)
}

func (r *WhisperRecognizer) transcribe(samples []float32) (string, error) {
	ctxWhisper, err := r.model.NewContext()
	if err != nil {
		return "", err
	}
	ctxWhisper.SetThreads(uint(runtime.NumCPU()))
	r.langMu.Lock()
	lang := r.lang
	r.langMu.Unlock()
	if lang != "" {
		if err := ctxWhisper.SetLanguage(lang); err != nil {
			r.logger.Warnf("set language: %v", err)
		}
	}

	if err := ctxWhisper.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		seg, err := ctxWhisper.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteRune(' ')
		}
	}
	return b.String(), nil
}

// Close releases the model and PortAudio.
func (r *WhisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.model.Close()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && DeviceMatches(d.Name, preferred) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
