// Package analysis inspects recorded loops in the frequency domain.
//
//   - [PowerSpectrum]: one-sided spectrum of a uniformly sampled signal
//   - [ErrorSpectrum]: spectrum of the tracking error
//   - [Spectrum.Dominant]: strongest oscillation, used to spot ringing
package analysis
