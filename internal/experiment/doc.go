// Package experiment turns a scenario configuration into a running closed
// loop and is the entry point the CLI uses for run, live, search and batch.
// [BumpTest] runs the same plant open loop for model identification.
package experiment
