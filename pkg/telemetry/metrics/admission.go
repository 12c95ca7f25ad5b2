package metrics

import "github.com/prometheus/client_golang/prometheus"

// admissionMetrics covers the resource-pressure admission layer.
type admissionMetrics struct {
	decisions       *prometheus.CounterVec
	pressureScore   prometheus.Gauge
	sheddingActive  prometheus.Gauge
	sheddingSeconds prometheus.Gauge
}

func newAdmissionMetrics(cfg CollectorConfig) *admissionMetrics {
	m := &admissionMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"decision"}),

		pressureScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pressure_score",
			Help:      "Latest combined resource pressure score. May exceed 1 under queue oversubscription.",
		}),

		sheddingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "load_shedding_active",
			Help:      "Whether a load-shedding episode is in progress (0 or 1).",
		}),

		sheddingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "load_shedding_duration_seconds",
			Help:      "Duration of the current load-shedding episode, 0 when inactive.",
		}),
	}

	cfg.Registry.MustRegister(m.decisions, m.pressureScore, m.sheddingActive, m.sheddingSeconds)
	return m
}
