package admission

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Snapshot is one observation of node resource usage plus the caller's
// queue state. OS-derived fields are cache-throttled by the sampler;
// QueueDepth and ActiveWork are always overwritten with the values the
// caller passes in, even when the rest is served from cache.
type Snapshot struct {
	MemoryPercent float64
	CPUPercent    float64
	QueueDepth    int
	ActiveWork    int
	LoadAverage   float64
	SampledAt     time.Time
}

// Sampler produces resource snapshots. The controller depends on this
// interface so tests can inject fixed readings.
type Sampler interface {
	Sample(queueDepth, activeWork int) Snapshot
}

// Conservative defaults returned when an OS read fails. Mid-range values
// keep a sampling outage from causing universal admission or rejection.
const (
	fallbackMemoryPercent = 50.0
	fallbackCPUPercent    = 50.0
	fallbackLoadAverage   = 1.0
)

// ProcSampler reads memory, CPU, and load from the /proc filesystem. OS
// reads are gated by a refresh interval; between refreshes the cached
// snapshot is reused with only the queue fields replaced.
type ProcSampler struct {
	logger *slog.Logger
	gate   *rate.Limiter

	mu     sync.Mutex
	cached Snapshot

	// prev CPU totals for delta-based utilization.
	prevTotal float64
	prevIdle  float64

	// paths are overridable for tests.
	meminfoPath string
	statPath    string
	loadavgPath string

	now func() time.Time
}

// ProcSamplerConfig configures a ProcSampler.
type ProcSamplerConfig struct {
	// RefreshInterval is the minimum time between OS reads. Default: 1s.
	RefreshInterval time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewProcSampler creates a sampler over /proc with the given refresh
// interval.
func NewProcSampler(cfg ProcSamplerConfig) *ProcSampler {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ProcSampler{
		logger:      cfg.Logger.With("component", "admission.sampler"),
		gate:        rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1),
		meminfoPath: "/proc/meminfo",
		statPath:    "/proc/stat",
		loadavgPath: "/proc/loadavg",
		now:         time.Now,
	}
}

// Sample returns the current snapshot. It performs a fresh OS read at most
// once per refresh interval; otherwise the cached OS-derived fields are
// reused and only the queue fields change.
func (s *ProcSampler) Sample(queueDepth, activeWork int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gate.Allow() {
		s.refreshLocked()
	}

	snap := s.cached
	snap.QueueDepth = queueDepth
	snap.ActiveWork = activeWork
	return snap
}

// refreshLocked replaces the cached OS-derived fields. Each signal falls
// back independently so one unreadable file does not poison the others.
func (s *ProcSampler) refreshLocked() {
	snap := Snapshot{SampledAt: s.now()}

	mem, err := s.readMemoryPercent()
	if err != nil {
		s.logger.Warn("memory sampling failed, using fallback", "error", err)
		mem = fallbackMemoryPercent
	}
	snap.MemoryPercent = mem

	cpu, err := s.readCPUPercent()
	if err != nil {
		s.logger.Warn("cpu sampling failed, using fallback", "error", err)
		cpu = fallbackCPUPercent
	}
	snap.CPUPercent = cpu

	load, err := s.readLoadAverage()
	if err != nil {
		s.logger.Warn("load sampling failed, using fallback", "error", err)
		load = fallbackLoadAverage
	}
	snap.LoadAverage = load

	s.cached = snap
}

// readMemoryPercent derives used-memory percent from MemTotal and
// MemAvailable in /proc/meminfo.
func (s *ProcSampler) readMemoryPercent() (float64, error) {
	f, err := os.Open(s.meminfoPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var total, available float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
		if total > 0 && available > 0 {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if total <= 0 {
		return 0, fmt.Errorf("meminfo: MemTotal not found")
	}
	return (total - available) / total * 100, nil
}

// readCPUPercent derives utilization from the delta of the aggregate cpu
// line in /proc/stat against the previous read. The first read has no
// baseline and reports the fallback value.
func (s *ProcSampler) readCPUPercent() (float64, error) {
	f, err := os.Open(s.statPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, fmt.Errorf("stat: empty file")
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, fmt.Errorf("stat: unexpected first line %q", sc.Text())
	}

	var total, idle float64
	for i, raw := range fields[1:] {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("stat: field %d: %w", i+1, err)
		}
		total += v
		// idle is field 4, iowait field 5.
		if i == 3 || i == 4 {
			idle += v
		}
	}

	prevTotal, prevIdle := s.prevTotal, s.prevIdle
	s.prevTotal, s.prevIdle = total, idle

	dTotal := total - prevTotal
	dIdle := idle - prevIdle
	if prevTotal == 0 || dTotal <= 0 {
		return fallbackCPUPercent, nil
	}
	return (dTotal - dIdle) / dTotal * 100, nil
}

// readLoadAverage returns the 1-minute load average from /proc/loadavg.
func (s *ProcSampler) readLoadAverage() (float64, error) {
	raw, err := os.ReadFile(s.loadavgPath)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 1 {
		return 0, fmt.Errorf("loadavg: empty file")
	}
	return strconv.ParseFloat(fields[0], 64)
}
