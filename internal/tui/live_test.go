package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/ctlkit/internal/core"
	"github.com/san-kum/ctlkit/internal/sim"
)

func sample(tick int, y float64) sim.Sample {
	return sim.Sample{
		Tick: tick,
		T:    float64(tick) * 0.001,
		R:    []float64{1, 2},
		Y:    []float64{y, 2 * y},
		U:    []float64{3, 4},
	}
}

func TestFeedDecimatesAndCopies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := NewFeed(ctx, 3)

	got := make(chan frame, 8)
	go func() {
		for i := 0; i < 2; i++ {
			if msg, ok := f.next().(frameMsg); ok {
				got <- frame(msg)
			}
		}
	}()

	s := sample(0, 0.5)
	for k := 0; k < 4; k++ {
		s.Tick = k
		f.OnTick(s)
	}
	s.Y[0] = 99

	first := <-got
	second := <-got
	assert.Equal(t, 0, first.tick)
	assert.Equal(t, 3, second.tick)
	assert.Equal(t, 0.5, second.y[0])
}

func TestFeedUnblocksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := NewFeed(ctx, 1)

	done := make(chan struct{})
	go func() {
		f.OnTick(sample(0, 0))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnTick still blocked after cancel")
	}
	assert.Nil(t, f.next())
}

func TestModelUpdate(t *testing.T) {
	canceled := false
	m := newModel("fopdt/step", NewFeed(context.Background(), 1), func() { canceled = true }, 100)

	for k := 0; k < historyLen+10; k++ {
		next, cmd := m.Update(frameMsg{tick: k, y: []float64{float64(k), 0}, r: []float64{1, 1}, u: []float64{0, 0}})
		m = next.(Model)
		require.NotNil(t, cmd)
	}
	assert.Len(t, m.y[0], historyLen)
	assert.Equal(t, float64(historyLen+9), m.y[0][historyLen-1])

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.Equal(t, 1, m.channel)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.Equal(t, 0, m.channel)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = next.(Model)
	assert.True(t, canceled)
	require.NotNil(t, cmd)
}

func TestModelView(t *testing.T) {
	m := newModel("fopdt/jitter", NewFeed(context.Background(), 1), func() {}, 10)
	assert.Contains(t, m.View(), "fopdt/jitter")

	next, _ := m.Update(frameMsg{
		tick:   4,
		y:      []float64{0.5},
		r:      []float64{1},
		u:      []float64{2},
		health: core.Health{FallbackActive: true, DeadlineMissCount: 3},
	})
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "fallback")
	assert.Contains(t, view, "misses 3")

	next, _ = m.Update(doneMsg{result: &sim.Result{Metrics: map[string]float64{"iae": 0.1}}})
	m = next.(Model)
	view = m.View()
	assert.Contains(t, view, "finished")
	assert.Contains(t, view, "iae")

	next, _ = m.Update(doneMsg{err: errors.New("diverged")})
	m = next.(Model)
	assert.True(t, strings.Contains(m.View(), "diverged"))
}
