package metrics

import "github.com/prometheus/client_golang/prometheus"

// ratelimitMetrics covers the tier and repository limiting layers.
type ratelimitMetrics struct {
	checks      *prometheus.CounterVec
	repoChecks  *prometheus.CounterVec
	storeErrors prometheus.Counter
}

func newRatelimitMetrics(cfg CollectorConfig) *ratelimitMetrics {
	m := &ratelimitMetrics{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ratelimit_checks_total",
			Help:      "Tier rate-limit checks by tier, category, and outcome.",
		}, []string{"tier", "category", "outcome"}),

		repoChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "repository_checks_total",
			Help:      "Shared-repository volume checks by repository, operation, and outcome.",
		}, []string{"repository", "operation", "outcome"}),

		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "counter_store_errors_total",
			Help:      "Counter-store round trips that failed and fell back to the failure policy.",
		}),
	}

	cfg.Registry.MustRegister(m.checks, m.repoChecks, m.storeErrors)
	return m
}
