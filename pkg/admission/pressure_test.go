package admission

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPressureScore(t *testing.T) {
	cases := []struct {
		name       string
		snap       Snapshot
		queueRatio float64
		want       float64
	}{
		{
			name:       "idle node",
			snap:       Snapshot{MemoryPercent: 0, CPUPercent: 0, LoadAverage: 0},
			queueRatio: 0,
			want:       0,
		},
		{
			name:       "mid load",
			snap:       Snapshot{MemoryPercent: 50, CPUPercent: 40, LoadAverage: 1},
			queueRatio: 0.5,
			want:       0.5*0.4 + 0.4*0.3 + 0.5*0.2 + 0.25*0.1,
		},
		{
			name:       "memory and cpu clamp at 100 percent",
			snap:       Snapshot{MemoryPercent: 250, CPUPercent: 180, LoadAverage: 20},
			queueRatio: 1,
			want:       0.4 + 0.3 + 0.2 + 0.1,
		},
		{
			name:       "load average clamps at 4",
			snap:       Snapshot{MemoryPercent: 0, CPUPercent: 0, LoadAverage: 16},
			queueRatio: 0,
			want:       0.1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PressureScore(tc.snap, tc.queueRatio)
			if !almostEqual(got, tc.want) {
				t.Errorf("PressureScore = %v, want %v", got, tc.want)
			}
		})
	}
}

// The queue ratio is deliberately not clamped: extreme oversubscription
// pushes the score past 1.0 so rejection probability keeps scaling past
// saturation.
func TestPressureScore_QueueRatioUnclamped(t *testing.T) {
	snap := Snapshot{MemoryPercent: 100, CPUPercent: 100, LoadAverage: 4}

	got := PressureScore(snap, 3.0)
	want := 0.4 + 0.3 + 3.0*0.2 + 0.1
	if !almostEqual(got, want) {
		t.Errorf("PressureScore = %v, want %v", got, want)
	}
	if got <= 1.0 {
		t.Errorf("expected an oversubscribed queue to push the score past 1.0, got %v", got)
	}
}
