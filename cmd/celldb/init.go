package main

import (
	"io"
	"log/slog"

	"celldb/pkg/config"
)

// initConfig loads the YAML config at path and applies command line
// overrides. A missing file yields config.Default().
func initConfig(path, dataDir string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg.DB.Path = dataDir
	}
	return cfg, cfg.Validate()
}

// initLogger configures the global slog.Logger (JSON or text).
func initLogger(cfg *config.Config, w io.Writer) error {
	level, err := cfg.Logger.SlogLevel()
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized", "level", level, "json", cfg.Logger.JSON)
	return nil
}
