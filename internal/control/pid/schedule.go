package pid

type gains struct {
	kp, ki, kd  float64
	beta, gamma float64
}

// at interpolates every table linearly at v. Values outside the breakpoint
// range use the end segment clamped to its edge.
func (s *schedule) at(v float64) gains {
	n := len(s.bp)
	i1 := min(max(upperBound(s.bp, v), 1), n-1)
	i0 := i1 - 1

	x0, x1 := s.bp[i0], s.bp[i1]
	t := (min(max(v, x0), x1) - x0) / (x1 - x0)

	return gains{
		kp:    lerp(s.kp[i0], s.kp[i1], t),
		ki:    lerp(s.ki[i0], s.ki[i1], t),
		kd:    lerp(s.kd[i0], s.kd[i1], t),
		beta:  lerp(s.beta[i0], s.beta[i1], t),
		gamma: lerp(s.gamma[i0], s.gamma[i1], t),
	}
}

// upperBound returns the first index whose breakpoint is greater than v.
func upperBound(bp []float64, v float64) int {
	lo, hi := 0, len(bp)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if bp[mid] > v {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// ScheduledGains reports the interpolated Kp, Ki, Kd at operating point v.
// ok is false when no schedule is configured.
func (p *PID) ScheduledGains(v float64) (kp, ki, kd float64, ok bool) {
	if len(p.sched.bp) == 0 {
		return 0, 0, 0, false
	}
	g := p.sched.at(v)
	return g.kp, g.ki, g.kd, true
}
