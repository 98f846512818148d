package plant

import "fmt"

const (
	DefaultMass      = 1.0
	DefaultStiffness = 10.0
	DefaultDamping   = 0.5
)

// MassSpring is a forced mass-spring-damper. State is [position, velocity],
// the input is a force and the measured output is position.
type MassSpring struct {
	Mass      float64
	Stiffness float64
	Damping   float64
	Theta     float64
}

func NewMassSpring() *MassSpring {
	return &MassSpring{
		Mass:      DefaultMass,
		Stiffness: DefaultStiffness,
		Damping:   DefaultDamping,
	}
}

func (m *MassSpring) Validate() error {
	if m.Mass <= 0 {
		return fmt.Errorf("plant: mass must be positive, got %g", m.Mass)
	}
	if m.Stiffness < 0 || m.Damping < 0 {
		return fmt.Errorf("plant: stiffness and damping must be non-negative")
	}
	if m.Theta < 0 {
		return fmt.Errorf("plant: dead time must be non-negative, got %g", m.Theta)
	}
	return nil
}

func (m *MassSpring) StateDim() int     { return 2 }
func (m *MassSpring) ControlDim() int   { return 1 }
func (m *MassSpring) OutputDim() int    { return 1 }
func (m *MassSpring) DeadTime() float64 { return m.Theta }

func (m *MassSpring) Derivative(x State, u Control, t float64) State {
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	acc := (force - m.Stiffness*x[0] - m.Damping*x[1]) / m.Mass
	return State{x[1], acc}
}

func (m *MassSpring) Output(x State, y []float64) {
	y[0] = x[0]
}

// StaticGain is the steady-state position per unit force.
func (m *MassSpring) StaticGain() float64 {
	if m.Stiffness == 0 {
		return 0
	}
	return 1 / m.Stiffness
}
