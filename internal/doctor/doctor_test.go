package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"iris/internal/config"
)

func TestCheckEndpoint(t *testing.T) {
	if r := checkEndpoint("voice", "wss://voice.example.com", "ws", "wss"); !r.Pass {
		t.Fatalf("wss should pass: %+v", r)
	}
	if r := checkEndpoint("voice", "https://voice.example.com", "ws", "wss"); r.Pass {
		t.Fatalf("https should fail for voice: %+v", r)
	}
	if r := checkEndpoint("chat", "", "http", "https"); r.Pass || r.Detail != "not set" {
		t.Fatalf("empty should fail: %+v", r)
	}
}

func TestCheckPlayer(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "play.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r := checkPlayer(config.PlayerConfig{Command: script + " -q"}); r.Pass {
		t.Fatalf("non-executable should fail: %+v", r)
	}
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if r := checkPlayer(config.PlayerConfig{Command: script + " -q"}); !r.Pass {
		t.Fatalf("executable should pass: %+v", r)
	}
	if r := checkPlayer(config.PlayerConfig{Command: dir}); r.Pass {
		t.Fatalf("directory should fail: %+v", r)
	}
	if r := checkPlayer(config.PlayerConfig{}); r.Pass {
		t.Fatalf("empty command should fail: %+v", r)
	}
	if r := checkPlayer(config.PlayerConfig{Backend: config.PlayerPortAudio}); !r.Pass {
		t.Fatalf("portaudio backend should pass: %+v", r)
	}
}

func TestFailed(t *testing.T) {
	if Failed([]Result{{Pass: true}}) {
		t.Fatalf("all passing")
	}
	if !Failed([]Result{{Pass: true}, {Pass: false}}) {
		t.Fatalf("one failing")
	}
}
