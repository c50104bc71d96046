package control

import (
	"context"

	"iris/internal/app"
	"iris/internal/config"
	"iris/internal/logging"
	"iris/internal/metrics"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

var (
	accent   = lipgloss.Color("#7C3AED")
	okStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	botStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	youStyle = lipgloss.NewStyle().Bold(true)
)

// loadApp loads config and logging, then starts the widgets.
func loadApp(ctx context.Context, cfgPath string, opts app.Options) (*app.App, error) {
	cfg, logger, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger, opts)
}

func loadConfig(cfgPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, &app.StartupError{Stage: "config", Err: err}
	}
	logger, err := logging.Configure(cfg)
	if err != nil {
		return nil, nil, &app.StartupError{Stage: "logging", Err: err}
	}
	return cfg, logger, nil
}

// startMetrics serves /metrics in the background when addr (or the config)
// enables it.
func startMetrics(ctx context.Context, cfg *config.Config, addr string, logger *logrus.Logger) {
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Addr
	}
	if addr == "" {
		return
	}
	go metrics.Serve(ctx, addr, logger)
}
