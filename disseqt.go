// Package disseqt loads MRI pulse sequence descriptions into an
// immutable in-memory model that can be queried for samples, events
// and integrated moments. Formats register themselves with the format
// package; the pulseq text and binary forms are built in.
package disseqt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pulseq-frame/disseqt/format"
	_ "github.com/pulseq-frame/disseqt/format/pulseq"
	"github.com/pulseq-frame/disseqt/seq"
)

var tracer = otel.Tracer("disseqt")

// ErrUnknownFormat reports a format hint naming no registered adapter,
// or data that no registered adapter recognizes.
var ErrUnknownFormat = errors.New("disseqt: unknown format")

// Option configures a load.
type Option func(*config)

type config struct {
	ctx     context.Context
	format  string
	logger  *zap.Logger
	metrics *Metrics
}

// WithContext attaches a context to the load for cancellation and
// trace propagation.
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

// WithFormat pins the adapter by registry tag instead of sniffing.
func WithFormat(name string) Option {
	return func(c *config) { c.format = name }
}

// WithLogger sets the logger for load-stage diagnostics. The default
// discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics instruments loads with the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// Load reads a sequence description from a file.
func Load(path string, opts ...Option) (*seq.Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data, opts...)
}

// LoadBytes parses a sequence description and builds the queryable
// model. The format is sniffed from the data unless pinned with
// WithFormat.
func LoadBytes(data []byte, opts ...Option) (*seq.Sequence, error) {
	cfg := config{ctx: context.Background(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := tracer.Start(cfg.ctx, "disseqt.Load")
	defer span.End()

	var (
		adapter format.Adapter
		ok      bool
	)
	if cfg.format != "" {
		if adapter, ok = format.Lookup(cfg.format); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.format)
		}
	} else if adapter, ok = format.Detect(data); !ok {
		return nil, fmt.Errorf("%w: data matches no registered adapter", ErrUnknownFormat)
	}
	span.SetAttributes(
		attribute.String("format", adapter.Name()),
		attribute.Int("bytes", len(data)),
	)

	start := time.Now()
	s, err := adapter.Parse(ctx, data)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		cfg.logger.Error("sequence load failed",
			zap.String("format", adapter.Name()),
			zap.Error(err),
		)
		cfg.metrics.observeLoad(adapter.Name(), "error", elapsed, seq.Stats{})
		return nil, err
	}

	stats := s.Stats()
	span.SetAttributes(attribute.Int("blocks", stats.Blocks))
	cfg.logger.Debug("sequence loaded",
		zap.String("format", adapter.Name()),
		zap.Int("bytes", len(data)),
		zap.Int("blocks", stats.Blocks),
		zap.Float64("duration_s", s.Duration()),
		zap.Duration("elapsed", elapsed),
	)
	cfg.metrics.observeLoad(adapter.Name(), "ok", elapsed, stats)
	return s, nil
}
