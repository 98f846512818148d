// Package plant defines continuous-time process models for closed-loop
// simulation.
//
// A [Plant] exposes dx/dt = f(x, u, t), a measurement map and a dead time:
//
//   - [FOPDT]: bank of first-order-plus-dead-time channels
//   - [MassSpring]: forced mass-spring-damper measured at position
//   - [Pendulum]: torque-driven damped pendulum measured at angle
package plant
