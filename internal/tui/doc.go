// Package tui is the bubbletea live view of a closed-loop run. The
// simulator feeds decimated ticks through a [Feed] observer and the view
// plots the selected channel with its health counters as the run advances.
package tui
