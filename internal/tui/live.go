package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/sim"
	"github.com/san-kum/ctlkit/internal/viz"
)

const (
	historyLen    = 240
	frameInterval = 33 * time.Millisecond
)

// frame is a copied tick, safe to hand to the UI goroutine.
type frame struct {
	tick     int
	t        float64
	r, y, u  []float64
	health   core.Health
	rejected bool
	manual   bool
}

// Feed is a simulator observer that hands every Every-th tick to the live
// view. It blocks the loop until the view takes the frame, so the run
// advances at display speed.
type Feed struct {
	ctx   context.Context
	every int
	ch    chan frame
}

func NewFeed(ctx context.Context, every int) *Feed {
	return &Feed{ctx: ctx, every: max(every, 1), ch: make(chan frame)}
}

func (f *Feed) OnTick(s sim.Sample) {
	if s.Tick%f.every != 0 {
		return
	}
	fr := frame{
		tick:     s.Tick,
		t:        s.T,
		r:        append([]float64(nil), s.R...),
		y:        append([]float64(nil), s.Y...),
		u:        append([]float64(nil), s.U...),
		health:   s.Health,
		rejected: s.Rejected,
		manual:   s.Manual,
	}
	select {
	case f.ch <- fr:
	case <-f.ctx.Done():
	}
}

func (f *Feed) next() tea.Msg {
	select {
	case fr := <-f.ch:
		return frameMsg(fr)
	case <-f.ctx.Done():
		return nil
	}
}

type frameMsg frame

type doneMsg struct {
	result *sim.Result
	err    error
}

// Model is the bubbletea model of a running closed loop.
type Model struct {
	title  string
	feed   *Feed
	cancel context.CancelFunc
	steps  int

	channel int
	last    frame
	frames  int
	y, r, u [][]float64

	done   bool
	result *sim.Result
	err    error
	width  int
}

func newModel(title string, feed *Feed, cancel context.CancelFunc, steps int) Model {
	return Model{title: title, feed: feed, cancel: cancel, steps: steps, width: 80}
}

func (m Model) Init() tea.Cmd { return m.feed.next }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "tab", "c":
			if n := len(m.last.y); n > 0 {
				m.channel = (m.channel + 1) % n
			}
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case frameMsg:
		m.push(frame(msg))
		return m, tea.Tick(frameInterval, func(time.Time) tea.Msg { return m.feed.next() })
	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m *Model) push(fr frame) {
	if len(m.y) == 0 {
		n := len(fr.y)
		m.y = make([][]float64, n)
		m.r = make([][]float64, n)
		m.u = make([][]float64, n)
	}
	for i := range fr.y {
		m.y[i] = appendWindow(m.y[i], fr.y[i])
		m.r[i] = appendWindow(m.r[i], fr.r[i])
		m.u[i] = appendWindow(m.u[i], fr.u[i])
	}
	m.last = fr
	m.frames++
}

func appendWindow(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyLen {
		s = s[len(s)-historyLen:]
	}
	return s
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(viz.HeaderStyle.Render(m.title))
	b.WriteString("\n")

	status := viz.StatusOK.Render("running")
	switch {
	case m.err != nil:
		status = viz.StatusFault.Render("failed: " + m.err.Error())
	case m.done:
		status = viz.StatusOK.Render("finished")
	case m.last.health.FallbackActive:
		status = viz.StatusFault.Render("fallback")
	case m.last.manual:
		status = viz.StatusWarn.Render("manual")
	case m.last.rejected:
		status = viz.StatusWarn.Render("measurement rejected")
	}
	progress := 0.0
	if m.steps > 0 {
		progress = float64(m.last.tick+1) / float64(m.steps)
	}
	if m.done {
		progress = 1
	}
	fmt.Fprintf(&b, "%s  t=%.3fs  %s\n\n", status, m.last.t, viz.ProgressBar(progress, 30))

	if len(m.y) > 0 {
		ch := m.channel
		width := min(max(m.width-12, 20), historyLen)
		b.WriteString(viz.Plot(m.y[ch], m.r[ch], fmt.Sprintf("y%d vs r%d", ch, ch), width))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s\n", viz.MetricLabel.Render(fmt.Sprintf("u%d", ch)), viz.Sparkline(m.u[ch], width))
		fmt.Fprintf(&b, "%s r=%.4f  y=%.4f  u=%.4f\n\n", viz.MetricLabel.Render("now"), m.last.r[ch], m.last.y[ch], m.last.u[ch])
	}

	h := m.last.health
	health := lipgloss.JoinHorizontal(lipgloss.Top,
		viz.Panel.Render(fmt.Sprintf("misses %d\nrate hits %d\njerk hits %d", h.DeadlineMissCount, h.RateLimitHits, h.JerkLimitHits)),
		viz.Panel.Render(fmt.Sprintf("sat %.0f%%\nclamp %.3g\naw %.3g", h.SaturationPct, h.LastClampMag, h.AWTermMag)),
	)
	b.WriteString(health)
	b.WriteString("\n")

	if m.done && m.result != nil {
		b.WriteString("\n")
		b.WriteString(viz.MetricsTable(m.result.Metrics))
		b.WriteString("\n")
	}
	b.WriteString(viz.KeyHint.Render("tab: next channel  q: quit"))
	return b.String()
}

// Run drives s inside a full-screen live view and returns the run result
// once the loop finishes and the user quits.
func Run(ctx context.Context, s *sim.Simulator, cfg sim.Config, title string, every int) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	feed := NewFeed(ctx, every)
	s.AddObserver(feed)

	steps := 0
	if cfg.Dt > 0 {
		steps = int(cfg.Duration / cfg.Dt)
	}
	p := tea.NewProgram(newModel(title, feed, cancel, steps), tea.WithAltScreen())

	go func() {
		res, err := s.Run(ctx, cfg)
		p.Send(doneMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(Model)
	if !m.done {
		return m.result, context.Canceled
	}
	return m.result, m.err
}
