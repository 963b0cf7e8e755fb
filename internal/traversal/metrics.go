package traversal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Truncation reasons.
const (
	TruncStructDepth  = "struct_depth"
	TruncNestingDepth = "nesting_depth"
	TruncArrayLimit   = "array_length_limit"
)

// Metrics are the traversal counters. A nil *Metrics records nothing.
type Metrics struct {
	records        prometheus.Counter
	inferences         *prometheus.CounterVec
	truncations    *prometheus.CounterVec
	derefFailures  prometheus.Counter
	scannedElements prometheus.Histogram
}

// NewMetrics registers the traversal counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		records: f.NewCounter(prometheus.CounterOpts{
			Namespace: "varscope",
			Subsystem: "traversal",
			Name:      "records_total",
			Help:      "Visit records emitted",
		}),
		inferences: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varscope",
			Subsystem: "traversal",
			Name:      "bounds_inferences_total",
			Help:      "Sequence bound inferences by the source that decided them",
		}, []string{"source"}),
		truncations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "varscope",
			Subsystem: "traversal",
			Name:      "truncations_total",
			Help:      "Walks cut short by a depth or length budget",
		}, []string{"reason"}),
		derefFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "varscope",
			Subsystem: "traversal",
			Name:      "dereference_failures_total",
			Help:      "Pointer reads that hit unallocated or unreadable memory",
		}),
		scannedElements: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "varscope",
			Subsystem: "traversal",
			Name:      "heap_scan_elements",
			Help:      "Element counts found by live heap inferences",
			Buckets:   []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
		}),
	}
}

func (m *Metrics) record() {
	if m != nil {
		m.records.Inc()
	}
}

func (m *Metrics) bounds(source string) {
	if m != nil {
		m.inferences.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) scanned(n int) {
	if m != nil {
		m.scannedElements.Observe(float64(n))
	}
}

func (m *Metrics) truncated(reason string) {
	if m != nil {
		m.truncations.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) derefFailed() {
	if m != nil {
		m.derefFailures.Inc()
	}
}
