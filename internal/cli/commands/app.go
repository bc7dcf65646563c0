// Package commands holds the plclog subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/plc-visualizer/logparse/internal/config"
	"github.com/plc-visualizer/logparse/internal/logging"
	"github.com/plc-visualizer/logparse/internal/parser"
)

// Exit codes shared by every subcommand.
const (
	ExitOK         = 0
	ExitLineErrors = 1
	ExitFatal      = 2
)

// App carries the global flags and the exit code set by the command that ran.
type App struct {
	ConfigPath string
	LogLevel   string
	LogJSON    bool
	Version    string

	exitCode int
}

// NewApp returns an App for the given build version.
func NewApp(version string) *App {
	return &App{Version: version}
}

// ExitCode returns the code set by the last command.
func (a *App) ExitCode() int {
	return a.exitCode
}

func (a *App) setExit(code int) {
	if code > a.exitCode {
		a.exitCode = code
	}
}

// load reads the config and builds the logger. --log-level and --log-json
// win over the file.
func (a *App) load() (*config.AppConfig, *slog.Logger, error) {
	cfg, err := config.LoadConfig(a.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	levelName := cfg.Logging.Level
	if a.LogLevel != "" {
		levelName = a.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	return cfg, logging.New(level, a.LogJSON || cfg.Logging.JSON), nil
}

func newRegistry(cfg *config.AppConfig, logger *slog.Logger) *parser.Registry {
	return parser.NewDefaultRegistry(
		parser.WithLogger(logger),
		parser.WithMaxLineBytes(cfg.Parsing.MaxLineBytes),
	)
}
