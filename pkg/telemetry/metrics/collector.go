package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector manages all Prometheus metrics for the gatekeeper. It owns a
// dedicated registry and pre-registers every metric at construction so
// recording never allocates.
type Collector struct {
	registry *prometheus.Registry

	admission *admissionMetrics
	ratelimit *ratelimitMetrics
	requests  *requestMetrics
}

// CollectorConfig configures the metrics collector.
type CollectorConfig struct {
	// Namespace is the metric namespace. Default: "arbor".
	Namespace string

	// Subsystem is the metric subsystem. Default: "gatekeeper".
	Subsystem string

	// Registry receives the metrics. Default: a fresh registry.
	Registry *prometheus.Registry

	// RequestDurationBuckets override the histogram buckets for request
	// durations. Defaults cover 1ms to 10s.
	RequestDurationBuckets []float64
}

// NewCollector creates a metrics collector with every metric registered.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "arbor"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gatekeeper"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}

	return &Collector{
		registry:  cfg.Registry,
		admission: newAdmissionMetrics(cfg),
		ratelimit: newRatelimitMetrics(cfg),
		requests:  newRequestMetrics(cfg),
	}
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordAdmission records one admission decision.
func (c *Collector) RecordAdmission(decision string) {
	c.admission.decisions.WithLabelValues(decision).Inc()
}

// SetPressureScore records the latest pressure score.
func (c *Collector) SetPressureScore(score float64) {
	c.admission.pressureScore.Set(score)
}

// SetSheddingActive records whether a load-shedding episode is active and
// its duration so far.
func (c *Collector) SetSheddingActive(active bool, elapsed time.Duration) {
	if active {
		c.admission.sheddingActive.Set(1)
		c.admission.sheddingSeconds.Set(elapsed.Seconds())
	} else {
		c.admission.sheddingActive.Set(0)
		c.admission.sheddingSeconds.Set(0)
	}
}

// RecordRateLimit records one tier rate-limit check.
func (c *Collector) RecordRateLimit(tier, category, outcome string) {
	c.ratelimit.checks.WithLabelValues(tier, category, outcome).Inc()
}

// RecordRepositoryLimit records one repository volume check.
func (c *Collector) RecordRepositoryLimit(repository, operation, outcome string) {
	c.ratelimit.repoChecks.WithLabelValues(repository, operation, outcome).Inc()
}

// RecordStoreError records a counter-store failure.
func (c *Collector) RecordStoreError() {
	c.ratelimit.storeErrors.Inc()
}

// RecordRequest records one completed HTTP request.
func (c *Collector) RecordRequest(method, status string, duration time.Duration) {
	c.requests.total.WithLabelValues(method, status).Inc()
	c.requests.duration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetInFlight records the current number of in-flight requests.
func (c *Collector) SetInFlight(n int) {
	c.requests.inFlight.Set(float64(n))
}
