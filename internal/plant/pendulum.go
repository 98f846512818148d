package plant

import (
	"fmt"
	"math"
)

const (
	DefaultLength  = 1.0
	DefaultGravity = 9.81
)

// Pendulum is a torque-driven damped pendulum. State is [angle, rate] with
// the angle measured from hanging straight down. The gravity torque makes
// the effective stiffness fall off with angle, so fixed gains tuned near
// the bottom get sluggish higher up.
type Pendulum struct {
	Mass    float64
	Length  float64
	Damping float64
	Gravity float64
	Theta   float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Mass:    DefaultMass,
		Length:  DefaultLength,
		Damping: DefaultDamping,
		Gravity: DefaultGravity,
	}
}

func (p *Pendulum) Validate() error {
	if p.Mass <= 0 || p.Length <= 0 {
		return fmt.Errorf("plant: pendulum mass and length must be positive, got %g and %g", p.Mass, p.Length)
	}
	if p.Damping < 0 || p.Gravity < 0 {
		return fmt.Errorf("plant: damping and gravity must be non-negative")
	}
	if p.Theta < 0 {
		return fmt.Errorf("plant: dead time must be non-negative, got %g", p.Theta)
	}
	return nil
}

func (p *Pendulum) StateDim() int     { return 2 }
func (p *Pendulum) ControlDim() int   { return 1 }
func (p *Pendulum) OutputDim() int    { return 1 }
func (p *Pendulum) DeadTime() float64 { return p.Theta }

func (p *Pendulum) Derivative(x State, u Control, t float64) State {
	torque := 0.0
	if len(u) > 0 {
		torque = u[0]
	}
	inertia := p.Mass * p.Length * p.Length
	alpha := (torque - p.Damping*x[1] - p.Mass*p.Gravity*p.Length*math.Sin(x[0])) / inertia
	return State{x[1], alpha}
}

func (p *Pendulum) Output(x State, y []float64) {
	y[0] = x[0]
}

// HoldingTorque is the steady torque that keeps the pendulum at angle.
func (p *Pendulum) HoldingTorque(angle float64) float64 {
	return p.Mass * p.Gravity * p.Length * math.Sin(angle)
}
