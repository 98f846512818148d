package core

// MaxChannels bounds nu and ny so channel validity fits one uint64 mask.
const MaxChannels = 64

// Dims gives the measurement, output and optional state sizes of a controller.
type Dims struct {
	NY int
	NU int
	NX int
}

func (d Dims) Valid() bool {
	return d.NU > 0 && d.NY > 0 && d.NX >= 0 &&
		d.NU <= MaxChannels && d.NY <= MaxChannels
}

type CommandMode uint8

const (
	Primary CommandMode = iota
	Residual
	Shadow
	Cooperative
)

func (m CommandMode) String() string {
	switch m {
	case Primary:
		return "primary"
	case Residual:
		return "residual"
	case Shadow:
		return "shadow"
	case Cooperative:
		return "cooperative"
	}
	return "unknown"
}

// Hooks are optional callbacks invoked at two fixed points of every tick.
// PreClamp may rewrite the law output before the safety chain sees it.
// PostArbitrate sees the pre-safety output and may override the final command.
type Hooks struct {
	PreClamp      func(u []float64)
	PostArbitrate func(uPre, uOut []float64)
}

type PlantState struct {
	Y         []float64
	Xhat      []float64
	T         int64
	ValidBits uint64
}

type Setpoint struct {
	R                 []float64
	PreviewHorizonLen uint16
}

type UpdateContext struct {
	Plant PlantState
	SP    Setpoint
}

type Result struct {
	U      []float64
	Health Health
}

// ChannelMask returns the mask with the low n bits set.
func ChannelMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}

// SecondsFromNanos converts a tick period to seconds.
func SecondsFromNanos(ns int64) float64 {
	return float64(ns) * 1e-9
}
