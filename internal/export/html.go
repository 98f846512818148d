package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/san-kum/ctlkit/internal/evidence"
)

// maxPoints caps the samples per series so long runs stay responsive in
// the browser.
const maxPoints = 4000

// WriteHTML renders an interactive page with the tracking and command
// charts of one channel.
func WriteHTML(w io.Writer, meta *evidence.RunMetadata, tr *evidence.Trace, ch int) error {
	if err := check(tr, ch); err != nil {
		return err
	}

	stride := max(1, len(tr.Times)/maxPoints)
	var x []string
	var r, y, u []opts.LineData
	for i := 0; i < len(tr.Times); i += stride {
		x = append(x, strconv.FormatFloat(tr.Times[i], 'f', 3, 64))
		r = append(r, opts.LineData{Value: tr.R[i][ch]})
		y = append(y, opts.LineData{Value: tr.Y[i][ch]})
		u = append(u, opts.LineData{Value: tr.U[i][ch]})
	}

	subtitle := fmt.Sprintf("%s  plant=%s  dt=%v  channel=%d",
		meta.Timestamp.Format(time.RFC3339), meta.Plant, time.Duration(meta.DtNs), ch)

	tracking := charts.NewLine()
	tracking.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ctlkit " + meta.ID, Theme: "dark", Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tracking " + meta.Preset, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
	)
	tracking.SetXAxis(x).
		AddSeries("r", r).
		AddSeries("y", y)

	command := charts.NewLine()
	command.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Command"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)"}),
	)
	command.SetXAxis(x).
		AddSeries("u", u)

	page := components.NewPage()
	page.PageTitle = "ctlkit " + meta.ID
	page.AddCharts(tracking, command)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("export: render html: %w", err)
	}
	return nil
}
