package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const ringtoneRate = 16000

// ringtoneSamples synthesizes two 440+480 Hz rings, 0.8 s on and 0.4 s off.
func ringtoneSamples() []int {
	const (
		on    = 0.8
		off   = 0.4
		rings = 2
		amp   = 0.25 * math.MaxInt16
	)
	var out []int
	for r := 0; r < rings; r++ {
		n := int(on * ringtoneRate)
		for i := 0; i < n; i++ {
			t := float64(i) / ringtoneRate
			// 10 ms fade avoids clicks at both ends.
			env := math.Min(1, math.Min(t, on-t)/0.01)
			v := 0.5 * (math.Sin(2*math.Pi*440*t) + math.Sin(2*math.Pi*480*t))
			out = append(out, int(amp*env*v))
		}
		out = append(out, make([]int, int(off*ringtoneRate))...)
	}
	return out
}

// WriteRingtone writes the synthesized ringtone as a 16-bit mono WAV.
func WriteRingtone(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, ringtoneRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: ringtoneRate},
		Data:           ringtoneSamples(),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write ringtone: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write ringtone: %w", err)
	}
	return f.Close()
}

// EnsureRingtone writes the ringtone if path does not exist yet and returns
// it as a clip.
func EnsureRingtone(path string) (Clip, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteRingtone(path); err != nil {
			return Clip{}, err
		}
	}
	return LoadClip(path)
}
