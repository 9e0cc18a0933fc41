package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/config"
	"github.com/fyrsmithlabs/browserlog/internal/logging"
	"github.com/fyrsmithlabs/browserlog/internal/telemetry"
)

// Exit codes.
const (
	exitError       = 1
	exitUsage       = 2
	exitUnavailable = 3
)

// app holds the dependencies every command builds from configuration.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// newApp loads configuration with overrides applied last, then starts
// telemetry and logging.
func newApp(ctx context.Context, overrides map[string]any) (*app, error) {
	if overrides == nil {
		overrides = map[string]any{}
	}
	if logLevel != "" {
		overrides["logging.level"] = logLevel
	}
	if logFormat != "" {
		overrides["logging.format"] = logFormat
	}

	cfg, err := config.Load(config.LoadOptions{Path: configPath, Overrides: overrides})
	if err != nil {
		return nil, usageError{err}
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := newLogger(cfg, tel)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	return &app{cfg: cfg, logger: logger, tel: tel}, nil
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Fields["service.version"] = version

	if tel.IsEnabled() {
		lc.Output.OTEL = true
		return logging.NewLogger(lc, tel.LoggerProvider())
	}
	return logging.NewLogger(lc, nil)
}

// close flushes telemetry and logs.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Telemetry.Shutdown.Timeout)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// usageError marks errors caused by bad flags or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var usage usageError
	switch {
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, cdp.ErrDebuggerNotRunning), errors.Is(err, cdp.ErrNoDebuggableTarget):
		return exitUnavailable
	default:
		return exitError
	}
}

// flagOverrides maps changed flags to configuration keys.
func flagOverrides(cmd *cobra.Command, keys map[string]string) (map[string]any, error) {
	out := make(map[string]any)
	for flag, key := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		var (
			v   any
			err error
		)
		switch f.Value.Type() {
		case "bool":
			v, err = cmd.Flags().GetBool(flag)
		case "int":
			v, err = cmd.Flags().GetInt(flag)
		case "duration":
			var d time.Duration
			d, err = cmd.Flags().GetDuration(flag)
			v = d.String()
		case "stringArray":
			v, err = cmd.Flags().GetStringArray(flag)
		default:
			v = f.Value.String()
		}
		if err != nil {
			return nil, usageError{fmt.Errorf("flag --%s: %w", flag, err)}
		}
		out[key] = v
	}
	return out, nil
}
