package core

// Health is the per-controller health snapshot attached to every Result.
type Health struct {
	// cumulative since Start
	DeadlineMissCount uint64
	RateLimitHits     uint64
	JerkLimitHits     uint64

	FallbackActive bool
	// NoveltyFlag is reserved for an out-of-distribution detector run by
	// the caller. Nothing in this module sets it; the kernel carries it
	// through untouched and the evidence recorder logs it.
	NoveltyFlag bool

	// current tick only
	SaturationPct   float64
	AWTermMag       float64
	LastClampMag    float64
	LastRateClipMag float64
	LastJerkClipMag float64
}

func (h *Health) clearTick() {
	h.SaturationPct = 0
	h.AWTermMag = 0
	h.LastClampMag = 0
	h.LastRateClipMag = 0
	h.LastJerkClipMag = 0
}

// KpiCounters are monotone counters for the evidence recorder.
type KpiCounters struct {
	Updates         uint64
	WatchdogTrips   uint64
	FallbackEntries uint64
	LimitHits       uint64
}
