package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/procdash/internal/env"
	"github.com/loykin/procdash/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PROCDASH_LOG_LEVEL=debug.
const EnvPrefix = "PROCDASH"

// Config represents the top-level TOML/YAML structure.
type Config struct {
	StopTimeout time.Duration   `mapstructure:"stop_timeout"`
	Env         []string        `mapstructure:"env"`
	EnvFiles    []string        `mapstructure:"env_files"`
	UseOSEnv    bool            `mapstructure:"use_os_env"`
	Log         LogConfig       `mapstructure:"log"`
	Output      OutputConfig    `mapstructure:"output"`
	History     HistoryConfig   `mapstructure:"history"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Entries     []EntryConfig   `mapstructure:"entries"`
}

// LogConfig configures the application log.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	Time       bool   `mapstructure:"time"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// OutputConfig configures capture of child stdout/stderr into rotating files.
// Without Dir, output lines go to the application log at debug level.
type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// HistoryConfig selects the lifecycle history store. Empty DSN disables it.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig enables a Prometheus textfile written at shutdown.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type TelemetryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	DiskPath string        `mapstructure:"disk_path"`
	Top      int           `mapstructure:"top"`
}

// EntryConfig seeds one registry entry.
type EntryConfig struct {
	Name      string `mapstructure:"name"`
	Path      string `mapstructure:"path"`
	Autostart bool   `mapstructure:"autostart"`
}

// DefaultEntries are seeded when the configuration lists none.
func DefaultEntries() []EntryConfig {
	return []EntryConfig{
		{Name: "API Server"},
		{Name: "Web Server"},
		{Name: "Database"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stop_timeout", "5s")
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("use_os_env", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.time", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 0)
	v.SetDefault("log.max_backups", 0)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("log.compress", false)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.max_size_mb", 0)
	v.SetDefault("output.max_backups", 0)
	v.SetDefault("output.max_age_days", 0)
	v.SetDefault("output.compress", false)
	v.SetDefault("history.dsn", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.interval", "1s")
	v.SetDefault("telemetry.disk_path", "/")
	v.SetDefault("telemetry.top", 5)
}

// Load reads path (TOML or YAML, chosen by extension) on top of the defaults,
// then applies PROCDASH_* environment overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(filepath.Clean(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(c.Entries) == 0 {
		c.Entries = DefaultEntries()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values viper cannot constrain.
func (c *Config) Validate() error {
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %s", c.StopTimeout)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch logger.Format(strings.ToLower(c.Log.Format)) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.Interval <= 0 {
		return fmt.Errorf("telemetry.interval must be positive, got %s", c.Telemetry.Interval)
	}
	return nil
}

// SlogConfig converts the [log] section for logger.NewSlogger.
func (c *Config) SlogConfig() logger.SlogConfig {
	return logger.SlogConfig{
		Level:    c.Log.Level,
		Format:   logger.Format(strings.ToLower(c.Log.Format)),
		Color:    c.Log.Color,
		ShowTime: c.Log.Time,
		File:     c.Log.File,
		Rotation: logger.Rotation{
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// OutputFileConfig converts the [output] section for child output capture.
func (c *Config) OutputFileConfig() logger.FileConfig {
	return logger.FileConfig{
		Dir: c.Output.Dir,
		Rotation: logger.Rotation{
			MaxSizeMB:  c.Output.MaxSizeMB,
			MaxBackups: c.Output.MaxBackups,
			MaxAgeDays: c.Output.MaxAgeDays,
			Compress:   c.Output.Compress,
		},
	}
}

// Environment builds the child environment.
// Precedence: OS env (when enabled) provides base; then env_files in order;
// then the top-level env list overrides last.
func (c *Config) Environment() (*env.Env, error) {
	e := env.New()
	e.UseOS = c.UseOSEnv
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for _, kv := range pairs {
			e.Set(kv[0], kv[1])
		}
	}
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			e.Set(k, v)
		}
	}
	return e, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes).
// Lines starting with # are ignored. Pairs are returned in file order.
func loadEnvFile(path string) ([][2]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			out = append(out, [2]string{k, strings.TrimSpace(v)})
		}
	}
	return out, nil
}
