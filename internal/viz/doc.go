// Package viz renders closed-loop runs for the terminal.
//
//   - [Summary]: static report of a finished run, with asciigraph plots of
//     the tracked channel and its command plus the KPI and health tables
//   - [Plot]: setpoint and measurement on one chart
//   - lipgloss styles shared with the live view in package tui
package viz
