package safety

import "math"

// Clip is the outcome of clamping one value: the accepted value, whether a
// bound was hit, and by how much the input was moved.
type Clip struct {
	Val float64
	Hit bool
	Mag float64
}

// RateClip clamps uNow into [uPrev-duMax, uPrev+duMax].
func RateClip(uNow, uPrev, duMax float64) Clip {
	lo, hi := uPrev-duMax, uPrev+duMax
	if uNow < lo {
		return Clip{Val: lo, Hit: true, Mag: math.Abs(lo - uNow)}
	}
	if uNow > hi {
		return Clip{Val: hi, Hit: true, Mag: math.Abs(uNow - hi)}
	}
	return Clip{Val: uNow}
}

// JerkClip clamps the step uNow-uPrev into [duPrev-dduMax, duPrev+dduMax].
func JerkClip(uNow, uPrev, duPrev, dduMax float64) Clip {
	lo, hi := duPrev-dduMax, duPrev+dduMax
	du := uNow - uPrev
	switch {
	case du < lo:
		return Clip{Val: uPrev + lo, Hit: true, Mag: math.Abs(lo - du)}
	case du > hi:
		return Clip{Val: uPrev + hi, Hit: true, Mag: math.Abs(du - hi)}
	}
	return Clip{Val: uNow}
}

// at reads a per-channel parameter where a single element broadcasts.
func at(s []float64, i int) float64 {
	if len(s) == 1 {
		return s[0]
	}
	return s[i]
}

// broadcastOK reports whether s can serve n channels.
func broadcastOK(s []float64, n int) bool {
	return len(s) == 1 || len(s) == n
}
