// Package integrators advances a [plant.Dynamics] by one time step.
//
// Every method is an explicit Runge-Kutta scheme driven by its Butcher
// tableau:
//
//   - [NewRK4]: classic fourth-order Runge-Kutta
//   - [NewHeun]: second-order trapezoidal predictor-corrector
//   - [NewEuler]: explicit first-order step
//
// [Substep] splits one control period into equal integration steps.
package integrators
