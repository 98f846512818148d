package evidence

import (
	"bufio"
	"encoding/json"
	"io"
	"math"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/sim"
)

// Recorder receives one record per controller tick. Implementations live
// outside the hot path and may allocate.
type Recorder interface {
	RecordTick(tick int, t int64, y, r, u []float64, h core.Health) error
	Close() error
}

type tickRecord struct {
	Tick int       `json:"tick"`
	T    int64     `json:"t_ns"`
	Y    []float64 `json:"y"`
	R    []float64 `json:"r"`
	U    []float64 `json:"u"`

	DeadlineMisses uint64  `json:"deadline_misses"`
	RateHits       uint64  `json:"rate_hits"`
	JerkHits       uint64  `json:"jerk_hits"`
	Fallback       bool    `json:"fallback"`
	Novelty        bool    `json:"novelty,omitempty"`
	SaturationPct  float64 `json:"saturation_pct"`
	AWTerm         float64 `json:"aw_term"`
	ClampMag       float64 `json:"clamp_mag"`
}

// JSONLRecorder writes newline-delimited JSON tick records. The first write
// error sticks: later ticks are dropped and Close reports it.
type JSONLRecorder struct {
	w   *bufio.Writer
	c   io.Closer
	enc *json.Encoder
	rec tickRecord
	n   int
	err error
}

// NewJSONLRecorder wraps w. If w is also an io.Closer, Close closes it.
func NewJSONLRecorder(w io.Writer) *JSONLRecorder {
	bw := bufio.NewWriter(w)
	j := &JSONLRecorder{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		j.c = c
	}
	return j
}

func (j *JSONLRecorder) RecordTick(tick int, t int64, y, r, u []float64, h core.Health) error {
	if j.err != nil {
		return j.err
	}
	j.rec = tickRecord{
		Tick:           tick,
		T:              t,
		Y:              y,
		R:              r,
		U:              u,
		DeadlineMisses: h.DeadlineMissCount,
		RateHits:       h.RateLimitHits,
		JerkHits:       h.JerkLimitHits,
		Fallback:       h.FallbackActive,
		Novelty:        h.NoveltyFlag,
		SaturationPct:  h.SaturationPct,
		AWTerm:         h.AWTermMag,
		ClampMag:       h.LastClampMag,
	}
	if err := j.enc.Encode(&j.rec); err != nil {
		j.err = err
		return err
	}
	j.n++
	return nil
}

// Records is the number of ticks written so far.
func (j *JSONLRecorder) Records() int { return j.n }

func (j *JSONLRecorder) Close() error {
	if err := j.w.Flush(); err != nil && j.err == nil {
		j.err = err
	}
	if j.c != nil {
		if err := j.c.Close(); err != nil && j.err == nil {
			j.err = err
		}
		j.c = nil
	}
	return j.err
}

// Tap forwards simulator ticks to a Recorder. Recording failures never
// stop the loop; the first one is kept for Err.
type Tap struct {
	rec Recorder
	err error
}

func NewTap(rec Recorder) *Tap {
	return &Tap{rec: rec}
}

func (t *Tap) OnTick(s sim.Sample) {
	if t.err != nil {
		return
	}
	ns := int64(math.Round(s.T * 1e9))
	t.err = t.rec.RecordTick(s.Tick, ns, s.Y, s.R, s.U, s.Health)
}

func (t *Tap) Err() error { return t.err }
