// Package automation runs scripted batches of closed-loop scenarios: yaml
// suites with metric limits, and Monte Carlo robustness checks against
// plant model mismatch.
package automation
