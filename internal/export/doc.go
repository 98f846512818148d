// Package export turns recorded runs into files for people outside the
// terminal: static plots, an interactive HTML page and a single JSON
// document.
package export
