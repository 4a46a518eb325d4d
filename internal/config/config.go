// Package config loads conversion settings from the config file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ralt/pkgconv/internal/models"
	"github.com/ralt/pkgconv/internal/scanner"
	"github.com/ralt/pkgconv/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName names the config directory
	AppName = "pkgconv"
	// ConfigFileName is the config file looked up in Dir
	ConfigFileName = "config.toml"
	// EnvPrefix prefixes environment overrides, e.g. PKGCONV_COMPRESSION
	EnvPrefix = "PKGCONV"
)

// Dir returns $XDG_CONFIG_HOME/pkgconv, defaulting to ~/.config/pkgconv
func Dir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

// Default returns the settings used when nothing overrides them
func Default() models.ConversionConfig {
	return models.ConversionConfig{
		OutputDir: ".",
		Workers:   runtime.NumCPU(),
		ConversionOptions: models.ConversionOptions{
			Scripts:     models.ScriptsPreserve,
			Bump:        1,
			Compression: string(utils.CompressionGzip),
		},
	}
}

// New prepares a viper instance with defaults, environment overrides and the
// config file. An explicit path must exist; the default file is optional.
func New(path string) (*viper.Viper, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("output_dir", defaults.OutputDir)
	v.SetDefault("staging_dir", defaults.StagingDir)
	v.SetDefault("from", defaults.Source)
	v.SetDefault("to", defaults.Targets)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("gpg_key", defaults.GPGKeyPath)
	v.SetDefault("gpg_passphrase", defaults.GPGPassphrase)
	v.SetDefault("scripts", string(defaults.Scripts))
	v.SetDefault("generate", defaults.Generate)
	v.SetDefault("description", defaults.Description)
	v.SetDefault("maintainer", defaults.Maintainer)
	v.SetDefault("architecture", defaults.Architecture)
	v.SetDefault("bump", defaults.Bump)
	v.SetDefault("compression", defaults.Compression)
	v.SetDefault("exclude", defaults.Exclude)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, invalid("failed to read config file %s: %w", path, err)
		}
		logrus.Debugf("Loaded config from %s", path)
		return v, nil
	}

	dir, err := Dir()
	if err != nil {
		logrus.Debugf("No config directory: %v", err)
		return v, nil
	}
	defaultPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(defaultPath); err != nil {
		return v, nil
	}
	v.SetConfigFile(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, invalid("failed to read config file %s: %w", defaultPath, err)
	}
	logrus.Debugf("Loaded config from %s", defaultPath)
	return v, nil
}

// BindFlags lets flags set on the command line override file and environment
// values. Flags are looked up by config key; keys without a flag are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return invalid("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}

// Load unmarshals the effective configuration and validates it
func Load(v *viper.Viper) (*models.ConversionConfig, error) {
	var cfg models.ConversionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, invalid("failed to parse config: %w", err)
	}
	cfg.Targets = splitList(cfg.Targets)
	cfg.Generate = splitList(cfg.Generate)
	cfg.Exclude = splitList(cfg.Exclude)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the conversion core depends on
func Validate(cfg *models.ConversionConfig) error {
	if cfg.OutputDir == "" {
		return invalid("output directory is required")
	}
	if cfg.Workers < 1 {
		return invalid("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.Bump < 0 {
		return invalid("bump must not be negative, got %d", cfg.Bump)
	}
	if cfg.Source != "" {
		if _, err := scanner.ParsePackageType(cfg.Source); err != nil {
			return invalid("from: %w", err)
		}
	}
	for _, target := range cfg.Targets {
		if _, err := scanner.ParsePackageType(target); err != nil {
			return invalid("to: %w", err)
		}
	}
	switch cfg.Scripts {
	case "":
		cfg.Scripts = models.ScriptsPreserve
	case models.ScriptsPreserve, models.ScriptsStrip:
	default:
		return invalid("scripts must be %q or %q, got %q", models.ScriptsPreserve, models.ScriptsStrip, cfg.Scripts)
	}
	for _, field := range cfg.Generate {
		switch field {
		case models.GenerateMaintainer, models.GenerateSummary, models.GenerateDescription, models.GenerateChangelog:
		default:
			return invalid("cannot generate %q", field)
		}
	}
	c, err := utils.ParseCompression(cfg.Compression)
	if err != nil {
		return invalid("compression: %w", err)
	}
	if c == utils.CompressionBzip2 || c == utils.CompressionNone {
		return invalid("compression must be gzip, xz or zstd, got %q", cfg.Compression)
	}
	return nil
}

// Render formats the configuration as TOML, leaving out the passphrase
func Render(cfg *models.ConversionConfig) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}

// splitList accepts both repeated values and comma separated ones
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func invalid(format string, args ...interface{}) error {
	return &models.ConversionError{Type: models.ErrInvalidConfig, Offset: -1, Err: fmt.Errorf(format, args...)}
}
