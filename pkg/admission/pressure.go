package admission

// Pressure weights. Memory exhaustion is the most catastrophic failure
// mode for the graph engine, CPU second; queue and load are softer signals.
const (
	weightMemory = 0.4
	weightCPU    = 0.3
	weightQueue  = 0.2
	weightLoad   = 0.1
)

// PressureScore folds a snapshot and a queue-fullness ratio into a single
// pressure value. Memory and CPU fractions are clamped to 1; the queue
// ratio is deliberately NOT clamped, so the score can exceed 1.0 under
// extreme oversubscription and push the rejection probability harder past
// saturation.
func PressureScore(snap Snapshot, queueRatio float64) float64 {
	memFrac := clampUnit(snap.MemoryPercent / 100)
	cpuFrac := clampUnit(snap.CPUPercent / 100)
	loadFrac := clampUnit(snap.LoadAverage / 4)

	return memFrac*weightMemory +
		cpuFrac*weightCPU +
		queueRatio*weightQueue +
		loadFrac*weightLoad
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
