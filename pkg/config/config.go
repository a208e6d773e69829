package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config is the root application config.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Server ServerConfig `yaml:"http-server"`
	DB     DBConfig     `yaml:"db"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type DBConfig struct {
	Path string `yaml:"path"`
	// FlushThreshold is the memtable size in bytes above which it is written to disk.
	FlushThreshold int64 `yaml:"flush_threshold"`
	// CompactThreshold starts a background compaction once this many tables
	// exist. Zero disables it.
	CompactThreshold int `yaml:"compact_threshold"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		DB: DBConfig{
			Path:             "./data",
			FlushThreshold:   1 << 20,
			CompactThreshold: 0,
		},
	}
}

// Load reads a YAML config from path on top of Default. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, err := c.Logger.SlogLevel(); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http-server.port %d", c.Server.Port)
	}
	if c.DB.Path == "" {
		return errors.New("db.path is required")
	}
	if c.DB.FlushThreshold < 1 {
		return fmt.Errorf("invalid db.flush_threshold %d", c.DB.FlushThreshold)
	}
	if c.DB.CompactThreshold < 0 {
		return fmt.Errorf("invalid db.compact_threshold %d", c.DB.CompactThreshold)
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LoggerConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(l.Level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid logger.level %q", l.Level)
}
