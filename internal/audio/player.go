package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"iris/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Player plays one clip and blocks until it finishes, fails or ctx is done.
type Player interface {
	Play(ctx context.Context, c Clip) error
}

// NewPlayer builds the configured playback backend.
func NewPlayer(cfg config.PlayerConfig, logger *logrus.Logger) (Player, error) {
	switch cfg.Backend {
	case "", config.PlayerCommand:
		return NewCommandPlayer(cfg, logger)
	case config.PlayerPortAudio:
		return newPortAudioPlayer(logger)
	default:
		return nil, fmt.Errorf("unknown player.backend %q", cfg.Backend)
	}
}

// CommandPlayer writes each clip to a temporary file and runs an external
// player on it.
type CommandPlayer struct {
	command string
	args    []string
	timeout time.Duration
	env     map[string]string
	logger  *logrus.Logger
}

// NewCommandPlayer validates cfg. The command may carry its own arguments
// ("mpg123 -q"); ${file} in either place is replaced with the clip path, and
// the path is appended when no placeholder is present.
func NewCommandPlayer(cfg config.PlayerConfig, logger *logrus.Logger) (*CommandPlayer, error) {
	parts, err := ParseArgs(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("player.command: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("no player.command configured")
	}
	return &CommandPlayer{
		command: parts[0],
		args:    append(parts[1:], cfg.Args...),
		timeout: config.Seconds(cfg.TimeoutSec),
		env:     cfg.Env,
		logger:  logger,
	}, nil
}

// ParseArgs splits a shell-style argument string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

func (p *CommandPlayer) Play(ctx context.Context, c Clip) error {
	f, err := os.CreateTemp("", "iris-clip-*"+c.Ext())
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(c.Data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	args := make([]string, 0, len(p.args)+1)
	placed := false
	for _, a := range p.args {
		if strings.Contains(a, "${file}") {
			placed = true
			a = strings.ReplaceAll(a, "${file}", f.Name())
		}
		args = append(args, a)
	}
	if !placed {
		args = append(args, f.Name())
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, p.command, args...)
	cmd.WaitDelay = time.Second
	cmd.Env = os.Environ()
	for k, v := range p.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("IRIS_CLIP_TYPE=%s", c.MIME))

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		p.logger.Debugf("player output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return fmt.Errorf("player: %w", ctxErr)
		}
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}
