// Package evidence persists closed-loop runs for later review.
//
// A run directory holds:
//   - metadata.json: setup, final health, KPI counters and metrics
//   - ticks.csv: time, setpoints, measurements and commands per tick
//   - ticks.jsonl: the streaming per-tick record written by JSONLRecorder
//
// Run IDs are random UUIDs.
package evidence
