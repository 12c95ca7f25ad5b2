package admission

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func newTestProcSampler(t *testing.T, interval time.Duration) (*ProcSampler, string) {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "meminfo"),
		"MemTotal:       1000 kB\nMemFree:         300 kB\nMemAvailable:    400 kB\n")
	writeFile(t, filepath.Join(dir, "stat"),
		"cpu  100 0 100 600 200 0 0 0\ncpu0 100 0 100 600 200 0 0 0\n")
	writeFile(t, filepath.Join(dir, "loadavg"),
		"0.42 0.30 0.20 1/100 12345\n")

	s := NewProcSampler(ProcSamplerConfig{
		RefreshInterval: interval,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.meminfoPath = filepath.Join(dir, "meminfo")
	s.statPath = filepath.Join(dir, "stat")
	s.loadavgPath = filepath.Join(dir, "loadavg")
	return s, dir
}

func TestProcSampler_ReadsProcFiles(t *testing.T) {
	s, _ := newTestProcSampler(t, time.Hour)

	snap := s.Sample(7, 3)

	// (1000 - 400) / 1000 = 60% used.
	if snap.MemoryPercent != 60 {
		t.Errorf("MemoryPercent = %v, want 60", snap.MemoryPercent)
	}
	// First CPU read has no baseline.
	if snap.CPUPercent != fallbackCPUPercent {
		t.Errorf("CPUPercent = %v, want fallback %v on first read", snap.CPUPercent, fallbackCPUPercent)
	}
	if snap.LoadAverage != 0.42 {
		t.Errorf("LoadAverage = %v, want 0.42", snap.LoadAverage)
	}
	if snap.QueueDepth != 7 || snap.ActiveWork != 3 {
		t.Errorf("queue fields not applied: %+v", snap)
	}
	if snap.SampledAt.IsZero() {
		t.Error("expected a sample timestamp")
	}
}

func TestProcSampler_CPUDelta(t *testing.T) {
	s, dir := newTestProcSampler(t, time.Millisecond)
	s.Sample(0, 0) // establish the baseline

	// Delta: total +1000, idle +250, so 75% busy.
	writeFile(t, filepath.Join(dir, "stat"),
		"cpu  500 0 450 850 200 0 0 0\n")

	time.Sleep(5 * time.Millisecond)
	snap := s.Sample(0, 0)
	if snap.CPUPercent != 75 {
		t.Errorf("CPUPercent = %v, want 75", snap.CPUPercent)
	}
}

func TestProcSampler_CachesWithinInterval(t *testing.T) {
	s, dir := newTestProcSampler(t, time.Hour)

	first := s.Sample(1, 1)

	// Change the underlying files; within the interval the OS-derived
	// fields must come from the cache while queue fields track the caller.
	writeFile(t, filepath.Join(dir, "meminfo"),
		"MemTotal:       1000 kB\nMemAvailable:    100 kB\n")

	second := s.Sample(42, 9)
	if second.MemoryPercent != first.MemoryPercent {
		t.Errorf("expected cached memory reading %v, got %v", first.MemoryPercent, second.MemoryPercent)
	}
	if second.QueueDepth != 42 || second.ActiveWork != 9 {
		t.Errorf("queue fields must always be overwritten: %+v", second)
	}
}

func TestProcSampler_FallbackOnUnreadableFiles(t *testing.T) {
	s := NewProcSampler(ProcSamplerConfig{
		RefreshInterval: time.Hour,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	dir := t.TempDir()
	s.meminfoPath = filepath.Join(dir, "missing")
	s.statPath = filepath.Join(dir, "missing")
	s.loadavgPath = filepath.Join(dir, "missing")

	snap := s.Sample(0, 0)
	if snap.MemoryPercent != fallbackMemoryPercent {
		t.Errorf("MemoryPercent = %v, want fallback %v", snap.MemoryPercent, fallbackMemoryPercent)
	}
	if snap.CPUPercent != fallbackCPUPercent {
		t.Errorf("CPUPercent = %v, want fallback %v", snap.CPUPercent, fallbackCPUPercent)
	}
	if snap.LoadAverage != fallbackLoadAverage {
		t.Errorf("LoadAverage = %v, want fallback %v", snap.LoadAverage, fallbackLoadAverage)
	}
}
