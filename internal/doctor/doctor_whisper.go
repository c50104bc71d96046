//go:build whisper

package doctor

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

func checkPortAudio() Result {
	if err := portaudio.Initialize(); err != nil {
		return Result{Name: "portaudio init", Pass: false, Detail: fmt.Sprintf("init failed: %v (install with: brew install portaudio)", err)}
	}
	defer func() {
		_ = portaudio.Terminate()
	}()
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return Result{Name: "portaudio init", Pass: false, Detail: fmt.Sprintf("no default input device: %v", err)}
	}
	return Result{Name: "portaudio init", Pass: true, Detail: "ok"}
}
