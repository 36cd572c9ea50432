package workspace

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// Metrics are the Prometheus collectors of the indexing pipeline.
type Metrics struct {
	FilesParsed      *prometheus.CounterVec
	FilesSkipped     *prometheus.CounterVec
	ScanDuration     *prometheus.HistogramVec
	References       *prometheus.GaugeVec
	RescansCancelled prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests and library users without a
// metrics endpoint want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesParsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "files_parsed_total",
			Help:      "Files parsed and extracted, by language.",
		}, []string{"language"}),
		FilesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "files_skipped_total",
			Help:      "Files left out of the graph, by reason.",
		}, []string{"reason"}),
		ScanDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codegraph",
			Name:      "scan_duration_seconds",
			Help:      "Duration of each scan phase.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),
		References: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "codegraph",
			Name:      "references",
			Help:      "References in the graph, by resolution status.",
		}, []string{"status"}),
		RescansCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "codegraph",
			Name:      "rescans_cancelled_total",
			Help:      "Rescans cancelled because newer changes arrived.",
		}),
	}
}

func (m *Metrics) observePhase(phase string, start time.Time) {
	m.ScanDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setReferences(st *graph.GraphStats) {
	m.References.WithLabelValues(string(graph.StatusResolved)).Set(float64(st.ResolvedCount))
	m.References.WithLabelValues(string(graph.StatusAmbiguous)).Set(float64(st.AmbiguousCount))
	m.References.WithLabelValues(string(graph.StatusUnresolved)).Set(float64(st.UnresolvedCount))
}
