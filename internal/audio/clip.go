// Package audio decodes and plays the assistant's audio clips and the
// local ringtone.
package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	MIMEMPEG = "audio/mpeg"
	MIMEWAV  = "audio/wav"
)

// Clip is a playable, encoded audio blob.
type Clip struct {
	MIME string
	Data []byte
}

// Ext returns the file extension players expect for the clip.
func (c Clip) Ext() string {
	if c.MIME == MIMEWAV {
		return ".wav"
	}
	return ".mp3"
}

// FromBase64 wraps a base64 payload as a clip of the given MIME type.
func FromBase64(payload, mime string) (Clip, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return Clip{}, fmt.Errorf("decode audio payload: %w", err)
	}
	if len(data) == 0 {
		return Clip{}, errors.New("empty audio payload")
	}
	return Clip{MIME: mime, Data: data}, nil
}

// LoadClip reads a clip from disk, picking the MIME type by extension.
func LoadClip(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, err
	}
	mime := MIMEMPEG
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		mime = MIMEWAV
	}
	return Clip{MIME: mime, Data: data}, nil
}

// PCM is interleaved signed 16-bit audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Decode converts a clip to PCM.
func Decode(c Clip) (PCM, error) {
	switch c.MIME {
	case MIMEWAV:
		return decodeWAV(bytes.NewReader(c.Data))
	case MIMEMPEG:
		return decodeMP3(bytes.NewReader(c.Data))
	default:
		return PCM{}, fmt.Errorf("unsupported clip type %q", c.MIME)
	}
}

func decodeMP3(r io.Reader) (PCM, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3: %w", err)
	}
	raw, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3: %w", err)
	}
	// go-mp3 always yields 16-bit little-endian stereo.
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return PCM{SampleRate: d.SampleRate(), Channels: 2, Samples: samples}, nil
}

func decodeWAV(r io.ReadSeeker) (PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return PCM{}, errors.New("wav: invalid file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("wav: %w", err)
	}
	return fromIntBuffer(buf, int(d.BitDepth)), nil
}

func fromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) PCM {
	shift := bitDepth - 16
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		samples[i] = int16(v)
	}
	return PCM{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels, Samples: samples}
}

// Mono returns the samples averaged across channels, scaled to [-1, 1].
func (p PCM) Mono() []float32 {
	ch := p.Channels
	if ch < 1 {
		ch = 1
	}
	out := make([]float32, len(p.Samples)/ch)
	for i := range out {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += float32(p.Samples[i*ch+c]) / 32768.0
		}
		out[i] = sum / float32(ch)
	}
	return out
}

// ReadWAVMono reads a WAV file and returns mono float samples resampled to
// rate.
func ReadWAVMono(path string, rate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pcm, err := decodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Resample(pcm.Mono(), pcm.SampleRate, rate), nil
}

// Resample converts samples between rates with linear interpolation.
func Resample(in []float32, srcSR, dstSR int) []float32 {
	if srcSR == dstSR || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(dstSR) / float64(srcSR)
	outLen := int(float64(len(in))*ratio + 0.9999)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
