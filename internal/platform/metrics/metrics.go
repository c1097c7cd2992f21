package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the register module.
type Metrics struct {
	// StudentsCreated counts roster additions.
	StudentsCreated prometheus.Counter

	// MarksWritten counts attendance cell writes by outcome.
	MarksWritten *prometheus.CounterVec

	// ExportsServed counts export downloads by format.
	ExportsServed *prometheus.CounterVec

	// BackendLatency records store round-trip durations by operation.
	BackendLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all register metrics registered.
func New() *Metrics {
	return &Metrics{
		StudentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rollbook_students_created_total",
			Help: "Total number of students added to the register",
		}),

		MarksWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbook_marks_written_total",
			Help: "Total attendance marks written by outcome",
		}, []string{"outcome"}), // outcome: "ok", "error"

		ExportsServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbook_exports_served_total",
			Help: "Total register exports served by format",
		}, []string{"format"}), // format: "csv", "xlsx"

		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollbook_backend_duration_seconds",
			Help:    "Duration of store operations by operation name",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// IncrementStudentsCreated increments the students created counter by 1.
func (m *Metrics) IncrementStudentsCreated() {
	if m != nil {
		m.StudentsCreated.Inc()
	}
}

// IncrementMarksWritten records a mark write outcome.
func (m *Metrics) IncrementMarksWritten(outcome string) {
	if m != nil {
		m.MarksWritten.WithLabelValues(outcome).Inc()
	}
}

// IncrementExportsServed records an export download.
func (m *Metrics) IncrementExportsServed(format string) {
	if m != nil {
		m.ExportsServed.WithLabelValues(format).Inc()
	}
}

// ObserveBackendLatency records the duration of a store operation.
func (m *Metrics) ObserveBackendLatency(operation string, d time.Duration) {
	if m != nil {
		m.BackendLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}
