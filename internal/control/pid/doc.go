// Package pid implements a multi-channel PID law on top of core.Kernel.
//
// Each channel computes
//
//	e  = beta*r - y
//	dy = b*(y - y_prev) + a1*dy_prev
//	u  = Kp*e + (I + Ki*dt*e) - Kd*dy + u_ff
//
// where a1 and b come from a Tustin discretization of the derivative filter.
// The integrator I is committed by the anti-windup stage after the safety
// chain has run, so back-calculation sees the real saturation outcome.
//
// Supporting pieces:
//   - [Config] and [Schedule]: per-channel parameters and gain tables
//   - [PID.AlignBumpless]: integrator back-solve for transient-free handover
//   - [Synthesize]: offline IMC tuning for FOPDT plants
package pid
