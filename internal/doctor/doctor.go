package doctor

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"iris/internal/audio"
	"iris/internal/config"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkEndpoint("chat webhook", cfg.Chat.WebhookURL, "http", "https"),
		checkEndpoint("forms webhook", cfg.Forms.WebhookURL, "http", "https"),
		checkEndpoint("voice server", cfg.Voice.URL, "ws", "wss"),
		checkSecret(cfg.Chat.Secret),
		checkFile("ringtone", cfg.Voice.RingtonePath),
		checkFile("model file", cfg.ASR.ModelPath),
		checkPlayer(cfg.Player),
		checkPortAudioPkgConfig(),
	}
	results = append(results, checkPortAudio())
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return true
		}
	}
	return false
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkEndpoint(label, raw string, schemes ...string) Result {
	if raw == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return Result{Name: label, Pass: true, Detail: raw}
		}
	}
	return Result{Name: label, Pass: false, Detail: fmt.Sprintf("expected %s URL, got %q", strings.Join(schemes, "/"), raw)}
}

func checkSecret(secret string) Result {
	label := "chat.secret"
	switch secret {
	case "":
		return Result{Name: label, Pass: false, Detail: "not set (use SECRET in .env)"}
	case "dev":
		return Result{Name: label, Pass: true, Detail: "using development secret"}
	}
	return Result{Name: label, Pass: true, Detail: "set"}
}

func checkPlayer(p config.PlayerConfig) Result {
	label := "player"
	if p.Backend == config.PlayerPortAudio {
		return Result{Name: label, Pass: true, Detail: "portaudio"}
	}
	parts, err := audio.ParseArgs(p.Command)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	if len(parts) == 0 {
		return Result{Name: label, Pass: false, Detail: "player.command not set"}
	}
	path := os.ExpandEnv(parts[0])
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set player.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}
