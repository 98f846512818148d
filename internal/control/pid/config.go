package pid

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/safety"
)

// Schedule is a piecewise-linear gain table over measurement channel 0.
// BP must be strictly increasing and every table must match its length.
type Schedule struct {
	BP       []float64
	KpTab    []float64
	KiTab    []float64
	KdTab    []float64
	BetaTab  []float64
	GammaTab []float64
}

func (s Schedule) Enabled() bool { return len(s.BP) > 0 }

// Config holds per-channel parameters. Every slice may be empty (type
// default), hold one value (broadcast) or hold one value per channel.
type Config struct {
	Kp []float64
	Ki []float64
	Kd []float64

	Beta  []float64
	Gamma []float64

	// Derivative filter time constant in seconds. N is used for a channel
	// only when TauF is empty; tau = 1/N.
	TauF []float64
	N    []float64

	UffBias []float64

	Umin   []float64
	Umax   []float64
	DuMax  []float64
	DduMax []float64

	AWMode safety.AWMode
	Kt     float64

	MissThreshold uint32
	WatchdogSlack int64

	SafeU            []float64
	FallbackRampRate float64
	FallbackOnTrip   bool

	Schedule Schedule
}

type spanCheck struct {
	name string
	vals []float64
	ok   func(v float64) bool
	want string
}

func finite(v float64) bool       { return !math.IsNaN(v) && !math.IsInf(v, 0) }
func nonNegative(v float64) bool  { return v >= 0 && !math.IsNaN(v) }
func unitInterval(v float64) bool { return v >= 0 && v <= 1 }
func isZero(v float64) bool       { return v == 0 }
func notNaN(v float64) bool       { return !math.IsNaN(v) }

// Validate checks the whole configuration for nu channels and reports every
// violation at once. The returned error matches core.ErrInvalidArg.
func (c *Config) Validate(nu int) error {
	var err error

	spans := []spanCheck{
		{"kp", c.Kp, finite, "finite"},
		{"ki", c.Ki, finite, "finite"},
		{"kd", c.Kd, finite, "finite"},
		{"beta", c.Beta, unitInterval, "in [0, 1]"},
		{"gamma", c.Gamma, isZero, "zero"},
		{"tau_f", c.TauF, nonNegative, "non-negative"},
		{"n", c.N, nonNegative, "non-negative"},
		{"u_ff_bias", c.UffBias, finite, "finite"},
		{"umin", c.Umin, notNaN, "a number"},
		{"umax", c.Umax, notNaN, "a number"},
		{"du_max", c.DuMax, nonNegative, "non-negative"},
		{"ddu_max", c.DduMax, nonNegative, "non-negative"},
		{"safe_u", c.SafeU, finite, "finite"},
	}
	for _, s := range spans {
		err = multierr.Append(err, checkSpan(s, nu))
	}

	if len(c.Umin) > 0 && len(c.Umax) > 0 && spanFits(c.Umin, nu) && spanFits(c.Umax, nu) {
		for i := 0; i < nu; i++ {
			if pick(c.Umin, i, 0) > pick(c.Umax, i, 0) {
				err = multierr.Append(err, invalid("channel %d: umin %g exceeds umax %g", i, pick(c.Umin, i, 0), pick(c.Umax, i, 0)))
			}
		}
	}

	if c.AWMode > safety.Off {
		err = multierr.Append(err, invalid("unknown anti-windup mode %d", c.AWMode))
	}
	if !finite(c.Kt) {
		err = multierr.Append(err, invalid("kt must be finite, got %g", c.Kt))
	}
	if c.WatchdogSlack < 0 {
		err = multierr.Append(err, invalid("watchdog slack must be non-negative, got %d", c.WatchdogSlack))
	}
	if !nonNegative(c.FallbackRampRate) {
		err = multierr.Append(err, invalid("fallback ramp rate must be non-negative, got %g", c.FallbackRampRate))
	}

	return multierr.Append(err, c.Schedule.validate())
}

func (s Schedule) validate() error {
	if !s.Enabled() {
		return nil
	}
	b := len(s.BP)
	if b < 2 {
		return invalid("schedule needs at least 2 breakpoints, got %d", b)
	}

	var err error
	for i := 1; i < b; i++ {
		if !(s.BP[i] > s.BP[i-1]) {
			err = multierr.Append(err, invalid("schedule breakpoints not strictly increasing at %d", i))
			break
		}
	}

	tables := []spanCheck{
		{"kp_tab", s.KpTab, finite, "finite"},
		{"ki_tab", s.KiTab, finite, "finite"},
		{"kd_tab", s.KdTab, finite, "finite"},
		{"beta_tab", s.BetaTab, unitInterval, "in [0, 1]"},
		{"gamma_tab", s.GammaTab, isZero, "zero"},
	}
	for _, t := range tables {
		if len(t.vals) != b {
			err = multierr.Append(err, invalid("%s has %d entries, schedule has %d breakpoints", t.name, len(t.vals), b))
			continue
		}
		err = multierr.Append(err, checkValues(t))
	}
	return err
}

func checkSpan(s spanCheck, nu int) error {
	if !spanFits(s.vals, nu) {
		return invalid("%s: expected 0, 1 or %d values, got %d", s.name, nu, len(s.vals))
	}
	return checkValues(s)
}

func checkValues(s spanCheck) error {
	for i, v := range s.vals {
		if !s.ok(v) {
			return invalid("%s[%d] must be %s, got %g", s.name, i, s.want, v)
		}
	}
	return nil
}

func spanFits(s []float64, nu int) bool {
	return len(s) <= 1 || len(s) == nu
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("pid: "+format+": %w", append(args, core.ErrInvalidArg)...)
}

// pick resolves a span entry for channel i.
func pick(s []float64, i int, def float64) float64 {
	switch len(s) {
	case 0:
		return def
	case 1:
		return s[0]
	}
	return s[i]
}

func fill(dst, src []float64, def float64) {
	for i := range dst {
		dst[i] = pick(src, i, def)
	}
}
