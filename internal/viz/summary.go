package viz

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/sim"
)

const (
	plotHeight = 10
	plotWidth  = 72
)

// Column extracts channel ch from a per-tick trace.
func Column(rows [][]float64, ch int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if ch < len(row) {
			out = append(out, row[ch])
		}
	}
	return out
}

// Plot draws measurement against setpoint. Width 0 keeps one column per
// sample up to the default width.
func Plot(y, r []float64, caption string, width int) string {
	if len(y) < 2 {
		return Subtle.Render("(not enough samples)")
	}
	if width <= 0 {
		width = plotWidth
	}
	series := [][]float64{y}
	colors := []asciigraph.AnsiColor{asciigraph.Blue}
	if len(r) == len(y) {
		series = append(series, r)
		colors = append(colors, asciigraph.Red)
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(plotHeight),
		asciigraph.Width(width),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(caption),
	)
}

// PlotCommand draws one channel of the actuator command.
func PlotCommand(u []float64, caption string, width int) string {
	if len(u) < 2 {
		return Subtle.Render("(not enough samples)")
	}
	if width <= 0 {
		width = plotWidth
	}
	return asciigraph.Plot(u,
		asciigraph.Height(plotHeight/2),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Green),
		asciigraph.Caption(caption),
	)
}

func MetricsTable(m map[string]float64) string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(m)) {
		v := m[name]
		val := fmt.Sprintf("%.6g", v)
		if math.IsInf(v, 1) {
			val = "unsettled"
		}
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render(fmt.Sprintf("%-16s", name)), MetricValue.Render(val))
	}
	return strings.TrimRight(b.String(), "\n")
}

func HealthTable(h core.Health, k core.KpiCounters, rejected int) string {
	status := StatusOK.Render("nominal")
	switch {
	case h.FallbackActive:
		status = StatusFault.Render("fallback")
	case h.DeadlineMissCount > 0 || rejected > 0:
		status = StatusWarn.Render("degraded")
	}

	rows := []struct {
		label string
		value string
	}{
		{"status", status},
		{"updates", fmt.Sprint(k.Updates)},
		{"rejected", fmt.Sprint(rejected)},
		{"deadline misses", fmt.Sprint(h.DeadlineMissCount)},
		{"watchdog trips", fmt.Sprint(k.WatchdogTrips)},
		{"fallback entries", fmt.Sprint(k.FallbackEntries)},
		{"limit hits", fmt.Sprint(k.LimitHits)},
		{"rate hits", fmt.Sprint(h.RateLimitHits)},
		{"jerk hits", fmt.Sprint(h.JerkLimitHits)},
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render(fmt.Sprintf("%-16s", r.label)), r.value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary is the full report printed after a run.
func Summary(title string, result *sim.Result, ch int) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(Plot(Column(result.Y, ch), Column(result.R, ch), fmt.Sprintf("y%d (blue) vs r%d (red)", ch, ch), 0))
	b.WriteString("\n\n")
	b.WriteString(PlotCommand(Column(result.U, ch), fmt.Sprintf("u%d", ch), 0))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		Panel.Render(Title.Render("metrics")+"\n"+MetricsTable(result.Metrics)),
		Panel.Render(Title.Render("health")+"\n"+HealthTable(result.Health, result.Kpi, result.Rejected)),
	))
	return b.String()
}
