package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultLang          = "es"
	DefaultSiteURL       = "https://ailabmind.com"
	DefaultWebhookURL    = "https://n8n.ailabmind.com/webhook/orchestrator"
	DefaultVoiceURL      = "wss://voice-iris-server.ailabmind.com"
	defaultChatTimeout   = 30.0
	defaultFormsTimeout  = 15.0
	defaultEndDelayMS    = 1500
	defaultStateDirLinux = ".local/state/iris"
	defaultConfigDir     = ".config/iris"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Site struct {
		BaseURL  string `toml:"base_url"`
		Lang     string `toml:"lang"`   // es, en
		Locale   string `toml:"locale"` // BCP 47 tag sent as "lang"; empty = derive from $LANG
		BlogPath string `toml:"blog_path"`
	} `toml:"site"`

	Chat struct {
		WebhookURL string  `toml:"webhook_url"`
		Secret     string  `toml:"secret"`
		TimeoutSec float64 `toml:"timeout_sec"`
	} `toml:"chat"`

	Forms struct {
		WebhookURL         string  `toml:"webhook_url"`
		TimeoutSec         float64 `toml:"timeout_sec"`
		ContactCooldownSec float64 `toml:"contact_cooldown_sec"`
		NewsletterCooldown float64 `toml:"newsletter_cooldown_sec"`
	} `toml:"forms"`

	Voice struct {
		URL                 string  `toml:"url"`
		UserAgent           string  `toml:"user_agent"`
		RingtonePath        string  `toml:"ringtone_path"`
		HandshakeTimeoutSec float64 `toml:"handshake_timeout_sec"`
		EndDelayMS          int     `toml:"end_delay_ms"`
	} `toml:"voice"`

	Audio struct {
		DeviceName  string `toml:"device_name"`
		DeviceIndex int    `toml:"device_index"`
		SampleRate  int    `toml:"sample_rate"`
		Channels    int    `toml:"channels"`
		FrameMS     int    `toml:"frame_ms"`
	} `toml:"audio"`

	VAD struct {
		SilenceMS      int `toml:"silence_ms"`
		Aggressiveness int `toml:"aggressiveness"`
		MinSpeechMS    int `toml:"min_speech_ms"`
		MaxSegmentMS   int `toml:"max_segment_ms"`
	} `toml:"vad"`

	ASR struct {
		ModelPath string `toml:"model_path"`
		Language  string `toml:"language"` // empty = follow site.lang
	} `toml:"asr"`

	Player PlayerConfig `toml:"player"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, nested, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir   string `toml:"state_dir"`
		LogPath    string `toml:"log_path"`
		StatePath  string `toml:"state_path"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/iris for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "iris")
	}

	cfg := &Config{}

	cfg.Site.BaseURL = DefaultSiteURL
	cfg.Site.Lang = DefaultLang
	cfg.Site.BlogPath = "./data/blog-posts.json"

	cfg.Chat.WebhookURL = DefaultWebhookURL
	cfg.Chat.Secret = "dev"
	cfg.Chat.TimeoutSec = defaultChatTimeout

	cfg.Forms.WebhookURL = DefaultWebhookURL
	cfg.Forms.TimeoutSec = defaultFormsTimeout
	cfg.Forms.ContactCooldownSec = 5
	cfg.Forms.NewsletterCooldown = 3

	cfg.Voice.URL = DefaultVoiceURL
	cfg.Voice.UserAgent = fmt.Sprintf("iris (%s; %s)", runtime.GOOS, runtime.GOARCH)
	cfg.Voice.RingtonePath = filepath.Join(stateDir, "ringtone.wav")
	cfg.Voice.HandshakeTimeoutSec = 10
	cfg.Voice.EndDelayMS = defaultEndDelayMS

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20

	cfg.VAD.SilenceMS = 900
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.MinSpeechMS = 300
	cfg.VAD.MaxSegmentMS = 12000

	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-small-q5_1.bin")

	cfg.Player = defaultPlayer()

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "iris.log")
	cfg.Paths.StatePath = filepath.Join(stateDir, "state.json")

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	return cfg, nil
}

// Load loads config from file, applying defaults, .env and env overrides.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// A missing .env is normal; anything else is worth surfacing.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.StatePath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IRIS_LANG"); v != "" {
		cfg.Site.Lang = strings.ToLower(v)
	}
	if v := os.Getenv("IRIS_SITE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("IRIS_CHAT_WEBHOOK_URL"); v != "" {
		cfg.Chat.WebhookURL = v
	}
	if v := os.Getenv("IRIS_SECRET"); v != "" {
		cfg.Chat.Secret = v
	}
	if v := os.Getenv("IRIS_FORMS_WEBHOOK_URL"); v != "" {
		cfg.Forms.WebhookURL = v
	}
	if v := os.Getenv("IRIS_VOICE_URL"); v != "" {
		cfg.Voice.URL = v
	}
	if v := os.Getenv("IRIS_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("IRIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IRIS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("IRIS_LOG_STDOUT"); v != "" {
		cfg.Logging.Stdout = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("IRIS_PLAYER_COMMAND"); v != "" {
		// The override carries its own flags; default args belong to the
		// default command.
		cfg.Player.Backend = PlayerCommand
		cfg.Player.Command = v
		cfg.Player.Args = nil
	}
}

// Seconds converts a float seconds config value to a Duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
