package config

import "runtime"

const (
	PlayerPortAudio = "portaudio"
	PlayerCommand   = "command"
)

// PlayerConfig selects how assistant audio clips and the ringtone are played.
type PlayerConfig struct {
	Backend    string            `toml:"backend"` // portaudio, command
	Command    string            `toml:"command"`
	Args       []string          `toml:"args"` // ${file} is replaced with the clip path
	TimeoutSec float64           `toml:"timeout_sec"`
	Env        map[string]string `toml:"env"`
}

// defaultPlayer must handle both the MP3 clips the server sends and the
// synthesized WAV ringtone.
func defaultPlayer() PlayerConfig {
	p := PlayerConfig{
		Backend:    PlayerCommand,
		Command:    "ffplay",
		Args:       []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "${file}"},
		TimeoutSec: 120,
		Env:        map[string]string{},
	}
	if runtime.GOOS == "darwin" {
		p.Command = "afplay"
		p.Args = []string{"${file}"}
	}
	return p
}
