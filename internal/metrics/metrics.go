// Package metrics exposes Prometheus instrumentation for the credential
// service and rotation engine. Registration is lazy and guarded so tests can
// construct components without a metrics endpoint.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationTotal       *prometheus.CounterVec
	credentialsIssued     prometheus.Counter
	sweepRemovedTotal     prometheus.Counter
	rotationRecordsTotal  *prometheus.CounterVec
	rotationCycleDuration prometheus.Histogram

	registerOnce sync.Once
	registered   bool
)

// Init registers all metrics with the default registry. Call once at startup
// when metrics are enabled; components record through no-op-safe helpers.
func Init() {
	registerOnce.Do(func() {
		validationTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credops_validation_total",
				Help: "Credential validation attempts by result",
			},
			[]string{"result"},
		)

		credentialsIssued = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credops_credentials_issued_total",
				Help: "Credentials issued",
			},
		)

		sweepRemovedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "credops_sweep_removed_total",
				Help: "Expired credentials removed by the sweeper",
			},
		)

		rotationRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credops_rotation_records_total",
				Help: "Rotation outcomes by service and result",
			},
			[]string{"service", "outcome"},
		)

		rotationCycleDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "credops_rotation_cycle_duration_seconds",
				Help:    "Duration of full rotation cycles",
				Buckets: []float64{0.1, 1, 5, 10, 30, 60, 120},
			},
		)

		registered = true
	})
}

// RecordValidation counts a validation attempt. result is "valid" or the
// failure reason.
func RecordValidation(result string) {
	if !registered {
		return
	}
	validationTotal.WithLabelValues(result).Inc()
}

// RecordIssued counts an issued credential.
func RecordIssued() {
	if !registered {
		return
	}
	credentialsIssued.Inc()
}

// RecordSwept counts credentials physically removed by the sweeper.
func RecordSwept(n int) {
	if !registered || n <= 0 {
		return
	}
	sweepRemovedTotal.Add(float64(n))
}

// RecordRotation counts a single rotation record.
func RecordRotation(service, outcome string) {
	if !registered {
		return
	}
	rotationRecordsTotal.WithLabelValues(service, outcome).Inc()
}

// RecordCycleDuration observes a completed rotation cycle.
func RecordCycleDuration(seconds float64) {
	if !registered {
		return
	}
	rotationCycleDuration.Observe(seconds)
}
