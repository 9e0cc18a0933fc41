package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024
	envPrefix         = "BROWSERLOG_"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is the YAML file to read. Empty means DefaultPath, which may
	// be absent. An explicit path must exist.
	Path string

	// Overrides are dotted keys ("collection.window") applied last.
	Overrides map[string]any

	// SkipEnv ignores BROWSERLOG_* variables.
	SkipEnv bool
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load(LoadOptions{Path: os.DevNull, SkipEnv: true})
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults are invalid: %v", err))
	}
	return cfg
}

// DefaultPath returns ~/.config/browserlog/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "browserlog", "config.yaml"), nil
}

// Load builds the configuration from defaults, file, environment and
// overrides, then validates it.
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix:
//
//	BROWSERLOG_COLLECTION_MAX_ENTRIES -> collection.max_entries
//	BROWSERLOG_FILTERS_LOG_LEVELS=error,warning -> filters.log_levels
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	content, path, err := readConfigFile(opts.Path)
	if err != nil {
		return nil, err
	}
	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if !opts.SkipEnv {
		if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	for key, val := range opts.Overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps BROWSERLOG_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile reads path, or the default path when empty. A missing
// default file yields no content.
func readConfigFile(path string) ([]byte, string, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, "", err
		}
	}
	if path == os.DevNull {
		return nil, path, nil
	}

	// Open once and stat the descriptor to avoid a TOCTOU race.
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, path, nil
		}
		return nil, path, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, path, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, path, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, path, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, path, nil
}

// validateConfigFileProperties rejects directories, oversized files and,
// because publish.token may live in the file, world-writable files.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o002 != 0 {
		return fmt.Errorf("insecure config file permissions: %v (must not be world-writable)", info.Mode().Perm())
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
