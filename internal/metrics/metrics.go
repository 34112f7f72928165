// Package metrics exposes engine counters to Prometheus.
//
// A nil *Recorder is valid and records nothing, so services can be built
// without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the engine's collectors.
type Recorder struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	claims          *prometheus.CounterVec
	leaseReleases   *prometheus.CounterVec
	sweepFailures   prometheus.Counter
	maintenanceRows *prometheus.CounterVec
	tamPool         *prometheus.GaugeVec
	burnRate        *prometheus.GaugeVec
	opDuration      *prometheus.HistogramVec
}

// New registers the engine collectors on a fresh registry. namespace
// prefixes every metric name.
func New(namespace string) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disposition_transitions_total",
			Help:      "Applied disposition transitions",
		}, []string{"from", "to"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disposition_rejected_total",
			Help:      "Disposition transitions rejected by the state machine",
		}, []string{"from", "to"}),
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_claims_total",
			Help:      "Ownership claims by outcome",
		}, []string{"outcome"}),
		leaseReleases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_releases_total",
			Help:      "Ownership leases cleared by reason",
		}, []string{"reason"}),
		sweepFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_sweep_failures_total",
			Help:      "Expired leases the sweep failed to clear",
		}),
		maintenanceRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_rows_total",
			Help:      "Rows processed by maintenance jobs",
		}, []string{"job", "result"}),
		tamPool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tam_pool_contacts",
			Help:      "Contacts per TAM pool at the last snapshot",
		}, []string{"client_id", "pool"}),
		burnRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tam_burn_rate_weekly",
			Help:      "Available contacts consumed per week",
		}, []string{"client_id"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Transition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) Rejected(from, to string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(from, to).Inc()
}

// Claim records a claim outcome: granted, refreshed or conflict.
func (r *Recorder) Claim(outcome string) {
	if r == nil {
		return
	}
	r.claims.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Released(reason string) {
	if r == nil {
		return
	}
	r.leaseReleases.WithLabelValues(reason).Inc()
}

func (r *Recorder) SweepFailed() {
	if r == nil {
		return
	}
	r.sweepFailures.Inc()
}

// Maintenance adds n rows with the given result to job.
func (r *Recorder) Maintenance(job, result string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.maintenanceRows.WithLabelValues(job, result).Add(float64(n))
}

// Pools publishes the pool sizes of a snapshot.
func (r *Recorder) Pools(clientID string, pools map[string]int, burn float64) {
	if r == nil {
		return
	}
	for pool, n := range pools {
		r.tamPool.WithLabelValues(clientID, pool).Set(float64(n))
	}
	r.burnRate.WithLabelValues(clientID).Set(burn)
}

// Since observes the time elapsed since start for op.
func (r *Recorder) Since(op string, start time.Time) {
	if r == nil {
		return
	}
	r.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
