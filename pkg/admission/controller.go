package admission

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Decision is the outcome of an admission check. Accept is the sole good
// state; callers treat every rejection uniformly and use the reason only
// for logging and response bodies.
type Decision string

const (
	Accept         Decision = "accept"
	RejectMemory   Decision = "reject_memory"
	RejectCPU      Decision = "reject_cpu"
	RejectQueue    Decision = "reject_queue"
	RejectLoadShed Decision = "reject_load_shed"
)

// Outcome pairs a decision with its human-readable reason. Reason is empty
// for Accept.
type Outcome struct {
	Decision Decision
	Reason   string
}

// Accepted reports whether the outcome admits the request.
func (o Outcome) Accepted() bool { return o.Decision == Accept }

// Health classifies the node for readiness reporting.
type Health string

const (
	Healthy   Health = "healthy"
	Degraded  Health = "degraded"
	Unhealthy Health = "unhealthy"
)

// HealthReport is the read-only aggregate view exposed on the status
// endpoint.
type HealthReport struct {
	Status          Health    `json:"status"`
	PressureScore   float64   `json:"pressure_score"`
	QueueRatio      float64   `json:"queue_ratio"`
	Snapshot        Snapshot  `json:"snapshot"`
	SheddingActive  bool      `json:"shedding_active"`
	SheddingElapsed float64   `json:"shedding_elapsed_seconds"`
	ReportedAt      time.Time `json:"reported_at"`
}

// ControllerConfig holds the admission thresholds. Zero values take the
// documented defaults.
type ControllerConfig struct {
	// Enabled is the operational kill-switch. When false every check
	// returns Accept. Default: true (set via EnabledSet for explicit
	// false).
	Enabled    bool
	EnabledSet bool

	// MemoryThreshold is the hard memory-percent limit. Default: 85.
	MemoryThreshold float64

	// CPUThreshold is the hard cpu-percent limit. Default: 90.
	CPUThreshold float64

	// QueueThreshold is the queue-fullness ratio above which probabilistic
	// shedding starts. Default: 0.8.
	QueueThreshold float64

	// Sampler provides resource snapshots. Required.
	Sampler Sampler

	// Rand supplies the uniform draws for probabilistic rejection.
	// Default: a seeded, mutex-guarded math/rand source.
	Rand RandSource

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Pressure thresholds for shedding and the episode hysteresis. Enter and
// exit differ so the episode flag does not flap sample to sample.
const (
	pressureShedThreshold   = 0.7
	episodeEnterThreshold   = 0.8
	episodeExitThreshold    = 0.6
	healthDegradedThreshold = 0.5
	healthUnhealthyLimit    = 0.7
)

// Controller makes one admission decision per call. It is constructed once
// at startup and shared by all requests; the cached snapshot lives in the
// sampler and the shedding-episode flag is the only state mutated here.
type Controller struct {
	enabled         bool
	memoryThreshold float64
	cpuThreshold    float64
	queueThreshold  float64

	sampler Sampler
	rand    RandSource
	logger  *slog.Logger
	now     func() time.Time

	mu             sync.Mutex
	episodeActive  bool
	episodeStarted time.Time
}

// NewController creates an admission controller.
func NewController(cfg ControllerConfig) *Controller {
	enabled := true
	if cfg.EnabledSet {
		enabled = cfg.Enabled
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = 85
	}
	if cfg.CPUThreshold <= 0 {
		cfg.CPUThreshold = 90
	}
	if cfg.QueueThreshold <= 0 {
		cfg.QueueThreshold = 0.8
	}
	if cfg.Rand == nil {
		cfg.Rand = newLockedRand()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		enabled:         enabled,
		memoryThreshold: cfg.MemoryThreshold,
		cpuThreshold:    cfg.CPUThreshold,
		queueThreshold:  cfg.QueueThreshold,
		sampler:         cfg.Sampler,
		rand:            cfg.Rand,
		logger:          cfg.Logger.With("component", "admission"),
		now:             time.Now,
	}
}

// CheckAdmission decides whether to admit a request given the current
// queue state and the request's priority (1 lowest, 10 highest). The first
// matching rejection wins; the shedding-episode flag is updated on every
// call that gets as far as computing pressure, independent of the outcome
// for this particular request.
func (c *Controller) CheckAdmission(queueDepth, maxQueueSize, activeWork, priority int) Outcome {
	if !c.enabled {
		return Outcome{Decision: Accept}
	}

	snap := c.sampler.Sample(queueDepth, activeWork)

	if snap.MemoryPercent > c.memoryThreshold {
		return Outcome{
			Decision: RejectMemory,
			Reason:   fmt.Sprintf("memory at %.1f%% exceeds threshold %.1f%%", snap.MemoryPercent, c.memoryThreshold),
		}
	}
	if snap.CPUPercent > c.cpuThreshold {
		return Outcome{
			Decision: RejectCPU,
			Reason:   fmt.Sprintf("cpu at %.1f%% exceeds threshold %.1f%%", snap.CPUPercent, c.cpuThreshold),
		}
	}

	queueRatio := 0.0
	if maxQueueSize > 0 {
		queueRatio = float64(queueDepth) / float64(maxQueueSize)
	}

	// The episode flag tracks pressure on every call that clears the hard
	// resource limits, independent of whether this particular request is
	// rejected below.
	score := PressureScore(snap, queueRatio)
	c.updateEpisode(score)

	// A saturated queue is a hard stop: no probability band applies when
	// there is nowhere to put the work.
	if maxQueueSize > 0 && queueDepth >= maxQueueSize {
		return Outcome{
			Decision: RejectQueue,
			Reason:   fmt.Sprintf("queue full (%d/%d)", queueDepth, maxQueueSize),
		}
	}

	scale := priorityScale(priority)

	if queueRatio > c.queueThreshold {
		prob := queueBandProbability(queueRatio) * scale
		if c.rand.Float64() < prob {
			return Outcome{
				Decision: RejectLoadShed,
				Reason:   fmt.Sprintf("queue at %.0f%% capacity, shed probability %.2f", queueRatio*100, prob),
			}
		}
	}

	if score > pressureShedThreshold {
		prob := (score - pressureShedThreshold) * 2 * scale
		if c.rand.Float64() < prob {
			return Outcome{
				Decision: RejectLoadShed,
				Reason:   fmt.Sprintf("pressure score %.2f, shed probability %.2f", score, prob),
			}
		}
	}

	return Outcome{Decision: Accept}
}

// ShouldAdmit is the coarse entry point for callers with no queue context,
// like background worker pools. It applies the hard resource limits and
// the pressure shed with a zero queue ratio; there is no queue rejection
// path.
func (c *Controller) ShouldAdmit() Outcome {
	if !c.enabled {
		return Outcome{Decision: Accept}
	}

	snap := c.sampler.Sample(0, 0)

	if snap.MemoryPercent > c.memoryThreshold {
		return Outcome{
			Decision: RejectMemory,
			Reason:   fmt.Sprintf("memory at %.1f%% exceeds threshold %.1f%%", snap.MemoryPercent, c.memoryThreshold),
		}
	}
	if snap.CPUPercent > c.cpuThreshold {
		return Outcome{
			Decision: RejectCPU,
			Reason:   fmt.Sprintf("cpu at %.1f%% exceeds threshold %.1f%%", snap.CPUPercent, c.cpuThreshold),
		}
	}

	score := PressureScore(snap, 0)
	c.updateEpisode(score)

	if score > pressureShedThreshold {
		prob := (score - pressureShedThreshold) * 2
		if c.rand.Float64() < prob {
			return Outcome{
				Decision: RejectLoadShed,
				Reason:   fmt.Sprintf("pressure score %.2f, shed probability %.2f", score, prob),
			}
		}
	}

	return Outcome{Decision: Accept}
}

// HealthStatus aggregates the current resource and shedding state for the
// status endpoint. It mutates nothing beyond the normal sampling cache.
func (c *Controller) HealthStatus(queueDepth, maxQueueSize, activeWork int) HealthReport {
	snap := c.sampler.Sample(queueDepth, activeWork)

	queueRatio := 0.0
	if maxQueueSize > 0 {
		queueRatio = float64(queueDepth) / float64(maxQueueSize)
	}
	score := PressureScore(snap, queueRatio)

	status := Healthy
	switch {
	case score >= healthUnhealthyLimit,
		snap.MemoryPercent > c.memoryThreshold,
		snap.CPUPercent > c.cpuThreshold:
		status = Unhealthy
	case score >= healthDegradedThreshold:
		status = Degraded
	}

	c.mu.Lock()
	active := c.episodeActive
	var elapsed float64
	if active {
		elapsed = c.now().Sub(c.episodeStarted).Seconds()
	}
	c.mu.Unlock()

	return HealthReport{
		Status:          status,
		PressureScore:   score,
		QueueRatio:      queueRatio,
		Snapshot:        snap,
		SheddingActive:  active,
		SheddingElapsed: elapsed,
		ReportedAt:      c.now(),
	}
}

// SheddingActive reports whether a shedding episode is in progress, and
// for how long.
func (c *Controller) SheddingActive() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.episodeActive {
		return false, 0
	}
	return true, c.now().Sub(c.episodeStarted)
}

// updateEpisode applies the enter/exit hysteresis to the shedding-episode
// flag. Between the two thresholds the flag holds its current value.
func (c *Controller) updateEpisode(score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.episodeActive && score > episodeEnterThreshold:
		c.episodeActive = true
		c.episodeStarted = c.now()
		c.logger.Warn("load shedding episode started", "pressure", score)
	case c.episodeActive && score < episodeExitThreshold:
		elapsed := c.now().Sub(c.episodeStarted)
		c.episodeActive = false
		c.logger.Info("load shedding episode ended", "pressure", score, "duration", elapsed)
	}
}

// priorityScale maps priority 1..10 to a rejection multiplier: priority 1
// scales by 1.0, priority 10 by 0.1. Out-of-range priorities are clamped.
func priorityScale(priority int) float64 {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return float64(11-priority) / 10
}

// queueBandProbability maps queue fullness to a base rejection probability.
func queueBandProbability(ratio float64) float64 {
	switch {
	case ratio > 0.95:
		return 0.9
	case ratio > 0.9:
		return 0.7
	default:
		return 0.5
	}
}
