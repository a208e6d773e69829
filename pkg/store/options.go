package store

import (
	"log/slog"

	"celldb/pkg/clock"
	"celldb/pkg/config"
	"celldb/pkg/metrics"
)

// DefaultFlushThreshold is the memtable size, in bytes, above which a write
// triggers a flush.
const DefaultFlushThreshold = 1 << 20

type options struct {
	flushThreshold   int64
	compactThreshold int
	tp               clock.TimeProvider
	logger           *slog.Logger
	metrics          metrics.Collector
}

type Option func(*options)

func defaultOptions() options {
	return options{
		flushThreshold: DefaultFlushThreshold,
		metrics:        metrics.Nop{},
	}
}

// WithFlushThreshold sets the memtable size in bytes that triggers a flush.
func WithFlushThreshold(bytes int64) Option {
	return func(o *options) { o.flushThreshold = bytes }
}

// WithCompactThreshold enables background compaction once n tables exist.
func WithCompactThreshold(n int) Option {
	return func(o *options) { o.compactThreshold = n }
}

func WithTimeProvider(tp clock.TimeProvider) Option {
	return func(o *options) { o.tp = tp }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(c metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// OpenWithConfig opens the store described by the db section of the config.
func OpenWithConfig(cfg config.DBConfig, opts ...Option) (*Store, error) {
	base := []Option{
		WithFlushThreshold(cfg.FlushThreshold),
		WithCompactThreshold(cfg.CompactThreshold),
	}
	return Open(cfg.Path, append(base, opts...)...)
}
