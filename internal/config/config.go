// Package config loads browserlog configuration.
//
// Values are layered, lowest precedence first: built-in defaults, the
// YAML config file, BROWSERLOG_* environment variables, then explicit
// overrides such as CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/browserlog/internal/filter"
	"github.com/fyrsmithlabs/browserlog/internal/telemetry"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the complete browserlog configuration.
type Config struct {
	Browser    BrowserConfig    `koanf:"browser"`
	Collection CollectionConfig `koanf:"collection"`
	Retry      RetryConfig      `koanf:"retry"`
	Reconnect  ReconnectConfig  `koanf:"reconnect"`
	Filters    filter.Spec      `koanf:"filters"`
	Format     FormatConfig     `koanf:"format"`
	Server     ServerConfig     `koanf:"server"`
	Publish    PublishConfig    `koanf:"publish"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  telemetry.Config `koanf:"telemetry"`
}

// BrowserConfig locates the remote debugging endpoint.
type BrowserConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// CallTimeout bounds each protocol call and HTTP probe.
	CallTimeout Duration `koanf:"call_timeout"`
}

type CollectionConfig struct {
	Window           Duration `koanf:"window"`
	MaxEntries       int      `koanf:"max_entries"`
	IncludeNetwork   bool     `koanf:"include_network"`
	IncludeConsole   bool     `koanf:"include_console"`
	IncludeLog       bool     `koanf:"include_log"`
	ProgressInterval Duration `koanf:"progress_interval"`
}

// RetryConfig is the policy for opening a protocol session.
type RetryConfig struct {
	MaxRetries    int      `koanf:"max_retries"`
	InitialDelay  Duration `koanf:"initial_delay"`
	MaxDelay      Duration `koanf:"max_delay"`
	BackoffFactor float64  `koanf:"backoff_factor"`
}

type ReconnectConfig struct {
	Enabled     bool     `koanf:"enabled"`
	MaxAttempts int      `koanf:"max_attempts"`
	Delay       Duration `koanf:"delay"`
}

type FormatConfig struct {
	GroupBySource     bool   `koanf:"group_by_source"`
	GroupByLevel      bool   `koanf:"group_by_level"`
	IncludeTimestamp  bool   `koanf:"include_timestamp"`
	IncludeStackTrace bool   `koanf:"include_stack_trace"`
	Redact            bool   `koanf:"redact"`
	Gitleaks          bool   `koanf:"gitleaks"`
	Output            string `koanf:"output"`
}

type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port for listening.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PublishConfig controls the NATS record sink.
type PublishConfig struct {
	Enabled bool     `koanf:"enabled"`
	URL     string   `koanf:"url"`
	Subject string   `koanf:"subject"`
	Token   Secret   `koanf:"token"`
	Timeout Duration `koanf:"timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var (
	validOutputs    = []string{"json", "yaml", "toml", "text"}
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "console"}
)

// Validate checks the configuration and wraps failures in ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Browser.Host != "", "browser.host is required")
	check(validPort(c.Browser.Port), "browser.port must be 1-65535, got %d", c.Browser.Port)
	check(c.Browser.CallTimeout > 0, "browser.call_timeout must be positive")

	check(c.Collection.Window > 0, "collection.window must be positive")
	check(c.Collection.MaxEntries >= 0, "collection.max_entries must be >= 0, got %d", c.Collection.MaxEntries)
	check(c.Collection.IncludeNetwork || c.Collection.IncludeConsole || c.Collection.IncludeLog,
		"at least one of collection.include_network, include_console, include_log must be set")
	check(c.Collection.ProgressInterval > 0, "collection.progress_interval must be positive")

	check(c.Retry.MaxRetries >= 1, "retry.max_retries must be >= 1, got %d", c.Retry.MaxRetries)
	check(c.Retry.InitialDelay >= 0, "retry.initial_delay must be >= 0")
	check(c.Retry.MaxDelay >= c.Retry.InitialDelay, "retry.max_delay must be >= retry.initial_delay")
	check(c.Retry.BackoffFactor >= 1, "retry.backoff_factor must be >= 1, got %g", c.Retry.BackoffFactor)

	if c.Reconnect.Enabled {
		check(c.Reconnect.MaxAttempts >= 1, "reconnect.max_attempts must be >= 1, got %d", c.Reconnect.MaxAttempts)
		check(c.Reconnect.Delay >= 0, "reconnect.delay must be >= 0")
	}

	check(oneOf(c.Format.Output, validOutputs), "format.output must be one of %v, got %q", validOutputs, c.Format.Output)

	check(validPort(c.Server.Port), "server.port must be 1-65535, got %d", c.Server.Port)
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive")

	if c.Publish.Enabled {
		check(c.Publish.URL != "", "publish.url is required when publishing is enabled")
		check(c.Publish.Subject != "" && !strings.ContainsAny(c.Publish.Subject, " \t*>"),
			"publish.subject must be a literal subject, got %q", c.Publish.Subject)
	}

	check(oneOf(c.Logging.Level, validLogLevels), "logging.level must be one of %v, got %q", validLogLevels, c.Logging.Level)
	check(oneOf(c.Logging.Format, validLogFormats), "logging.format must be one of %v, got %q", validLogFormats, c.Logging.Format)

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func oneOf(v string, allowed []string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
