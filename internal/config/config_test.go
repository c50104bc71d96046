package config

import (
	"os"
	"runtime"
	"slices"
	"testing"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("IRIS_LANG", "EN")
	t.Setenv("IRIS_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("IRIS_LOG_LEVEL", "debug")
	t.Setenv("IRIS_LOG_FORMAT", "json")
	t.Setenv("IRIS_SECRET", "s3cret")
	t.Setenv("IRIS_PLAYER_COMMAND", "/usr/bin/ffplay")

	applyEnvOverrides(cfg)

	if cfg.Site.Lang != "en" {
		t.Fatalf("lang override failed: %q", cfg.Site.Lang)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if cfg.Chat.Secret != "s3cret" {
		t.Fatalf("secret override failed")
	}
	if cfg.Player.Backend != PlayerCommand || cfg.Player.Command != "/usr/bin/ffplay" {
		t.Fatalf("player override failed: %+v", cfg.Player)
	}
	if len(cfg.Player.Args) != 0 {
		t.Fatalf("override kept default args: %v", cfg.Player.Args)
	}
}

func TestDefaultPlayerPlaysWAVAndMP3(t *testing.T) {
	p := defaultPlayer()
	if runtime.GOOS == "darwin" {
		if p.Command != "afplay" {
			t.Fatalf("unexpected darwin player %q", p.Command)
		}
		return
	}
	// mpg123 cannot decode the PCM WAV ringtone.
	if p.Command == "mpg123" {
		t.Fatalf("default player cannot play the ringtone")
	}
	want := []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "${file}"}
	if p.Command != "ffplay" || !slices.Equal(p.Args, want) {
		t.Fatalf("default player = %s %v", p.Command, p.Args)
	}
}

func TestDefaultsMatchSite(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if cfg.Chat.TimeoutSec != 30 {
		t.Fatalf("chat timeout should default to 30s, got %v", cfg.Chat.TimeoutSec)
	}
	if cfg.Voice.EndDelayMS != 1500 {
		t.Fatalf("end delay should default to 1500ms, got %d", cfg.Voice.EndDelayMS)
	}
	if cfg.Site.Lang != DefaultLang {
		t.Fatalf("unexpected default lang %q", cfg.Site.Lang)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.toml"

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = path
	cfg.Voice.URL = "ws://127.0.0.1:9000"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Voice.URL != "ws://127.0.0.1:9000" {
		t.Fatalf("expected voice url to persist")
	}
	if loaded.Paths.ConfigPath != path {
		t.Fatalf("config path not recorded: %q", loaded.Paths.ConfigPath)
	}

	// cleanup to avoid residue
	_ = os.Remove(path)
}

func TestLoadWritesTemplateWhenMissing(t *testing.T) {
	path := t.TempDir() + "/nested/config.toml"
	if _, err := Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template not written: %v", err)
	}
}
