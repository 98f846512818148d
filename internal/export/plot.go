package export

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/ctlkit/internal/evidence"
)

var (
	ErrEmptyTrace = errors.New("export: trace has fewer than two ticks")
	ErrChannel    = errors.New("export: channel out of range")
)

var (
	setpointColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	outputColor   = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	commandColor  = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// Plot draws setpoint, measurement and command of one channel against time.
func Plot(tr *evidence.Trace, ch int, title string) (*plot.Plot, error) {
	if err := check(tr, ch); err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = fmt.Sprintf("channel %d", ch)
	p.Add(plotter.NewGrid())

	series := []struct {
		name  string
		rows  [][]float64
		color color.Color
		dash  bool
	}{
		{"r", tr.R, setpointColor, true},
		{"y", tr.Y, outputColor, false},
		{"u", tr.U, commandColor, false},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(tr.Times))
		for i, t := range tr.Times {
			pts[i] = plotter.XY{X: t, Y: s.rows[i][ch]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("export: %s series: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		if s.dash {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// SavePlot renders the channel plot to path. The format follows the file
// extension (svg, png, pdf and the others gonum/plot knows).
func SavePlot(path string, tr *evidence.Trace, ch int, title string) error {
	p, err := Plot(tr, ch, title)
	if err != nil {
		return err
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("export: save plot: %w", err)
	}
	return nil
}

func check(tr *evidence.Trace, ch int) error {
	if tr == nil || len(tr.Times) < 2 {
		return ErrEmptyTrace
	}
	if ch < 0 || ch >= len(tr.Y[0]) {
		return fmt.Errorf("%w: %d of %d", ErrChannel, ch, len(tr.Y[0]))
	}
	return nil
}
