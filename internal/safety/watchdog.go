package safety

// Watchdog counts ticks whose spacing falls outside [dt-slack, dt+slack]
// and trips once the miss count reaches the threshold. The trip latches
// until Reset or Clear. A watchdog with dt <= 0 or threshold 0 never trips.
type Watchdog struct {
	dt        int64
	slack     int64
	threshold uint32
	lastT     int64
	haveLast  bool
	misses    uint32
	tripped   bool
}

func NewWatchdog(dtNs int64, missThreshold uint32, slackNs int64) Watchdog {
	return Watchdog{
		dt:        dtNs,
		slack:     max(0, slackNs),
		threshold: missThreshold,
	}
}

// Reset clears the trip and takes t0 as the previous tick, so the next
// Tick is measured against it. Any int64 is a valid baseline.
func (w *Watchdog) Reset(t0 int64) {
	w.Clear()
	w.lastT, w.haveLast = t0, true
}

// Clear clears the trip and drops the baseline; the next Tick only arms.
func (w *Watchdog) Clear() {
	w.haveLast = false
	w.misses = 0
	w.tripped = false
}

// Tick records a tick at tNow and reports whether the watchdog is tripped.
func (w *Watchdog) Tick(tNow int64) bool {
	armed := w.haveLast && w.dt > 0 && w.threshold > 0
	if armed {
		d := tNow - w.lastT
		if d < w.dt-w.slack || d > w.dt+w.slack {
			w.misses++
			if w.misses >= w.threshold {
				w.tripped = true
			}
		}
	}
	w.lastT, w.haveLast = tNow, true
	return w.tripped
}

func (w *Watchdog) Tripped() bool  { return w.tripped }
func (w *Watchdog) Misses() uint32 { return w.misses }
