package disseqt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulseq-frame/disseqt/seq"
)

// Metrics holds the Prometheus collectors for sequence loading. Pass
// one to Load via WithMetrics; a nil Metrics records nothing.
type Metrics struct {
	Loads         *prometheus.CounterVec
	LoadDuration  prometheus.Histogram
	BlocksLoaded  prometheus.Counter
	ShapesDecoded prometheus.Counter
}

// NewMetrics creates and registers all loader metrics with the
// provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "disseqt_loads_total",
		Help: "Sequence load attempts by format and status",
	}, []string{"format", "status"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "disseqt_load_duration_seconds",
		Help:    "Wall time spent parsing and building a sequence",
		Buckets: prometheus.DefBuckets,
	})

	blocks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "disseqt_blocks_loaded_total",
		Help: "Blocks resolved into built sequences",
	})

	shapes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "disseqt_shapes_decoded_total",
		Help: "Unique shapes decoded while building sequences",
	})

	reg.MustRegister(loads, duration, blocks, shapes)

	return &Metrics{
		Loads:         loads,
		LoadDuration:  duration,
		BlocksLoaded:  blocks,
		ShapesDecoded: shapes,
	}
}

func (m *Metrics) observeLoad(format, status string, elapsed time.Duration, stats seq.Stats) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(format, status).Inc()
	m.LoadDuration.Observe(elapsed.Seconds())
	m.BlocksLoaded.Add(float64(stats.Blocks))
	m.ShapesDecoded.Add(float64(stats.Shapes))
}
