package pid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/ctlkit/internal/arena"
	"github.com/san-kum/ctlkit/internal/core"
)

func TestSynthesize(t *testing.T) {
	base := IMCInputs{K: 2, Tau: 5, Theta: 1, Lambda: 2, DtNs: 1_000_000, C: 4}

	o1, err := Synthesize(base)
	require.NoError(t, err)
	assert.InDelta(t, 5.0/(2*3), o1.Kp, 1e-12)
	assert.InDelta(t, o1.Kp, o1.Kd, 1e-12)
	assert.InDelta(t, o1.Kp/5, o1.Ki, 1e-12)
	assert.InDelta(t, 0.3, o1.TauF, 1e-12)

	t.Run("larger lambda detunes", func(t *testing.T) {
		in := base
		in.Lambda = 10
		o2, err := Synthesize(in)
		require.NoError(t, err)
		assert.Less(t, o2.Kp, o1.Kp)
		assert.Less(t, o2.Ki, o1.Ki)
	})

	t.Run("derivative grows with dead time", func(t *testing.T) {
		in := base
		in.Theta = 2
		o3, err := Synthesize(in)
		require.NoError(t, err)
		assert.Greater(t, o3.Kd, o1.Kd)
	})

	t.Run("filter bounded by tau", func(t *testing.T) {
		in := base
		in.Lambda = 500
		o, err := Synthesize(in)
		require.NoError(t, err)
		assert.Equal(t, in.Tau, o.TauF)
	})
}

func TestSynthesizeLambdaFloor(t *testing.T) {
	tiny, err := Synthesize(IMCInputs{K: 2, Tau: 5, Theta: 1, Lambda: 1e-6, DtNs: 1_000_000, C: 4})
	require.NoError(t, err)
	explicit, err := Synthesize(IMCInputs{K: 2, Tau: 5, Theta: 1, Lambda: 1, DtNs: 1_000_000, C: 4})
	require.NoError(t, err)

	assert.InDelta(t, explicit.Kp, tiny.Kp, 1e-12)
	assert.InDelta(t, explicit.Ki, tiny.Ki, 1e-12)
	assert.InDelta(t, explicit.Kd, tiny.Kd, 1e-12)
	assert.InDelta(t, explicit.TauF, tiny.TauF, 1e-12)
	assert.Equal(t, 1.0, tiny.Lambda)

	// without dead time the floor comes from the sample period
	o, err := Synthesize(IMCInputs{K: 1, Tau: 1, DtNs: 10_000_000})
	require.NoError(t, err)
	assert.InDelta(t, DefaultLambdaFloor*0.01, o.Lambda, 1e-15)
}

func TestSynthesizeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   IMCInputs
	}{
		{"zero gain", IMCInputs{K: 0, Tau: 1}},
		{"nan gain", IMCInputs{K: math.NaN(), Tau: 1}},
		{"zero tau", IMCInputs{K: 1, Tau: 0}},
		{"negative dead time", IMCInputs{K: 1, Tau: 1, Theta: -1}},
		{"negative dt", IMCInputs{K: 1, Tau: 1, DtNs: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Synthesize(tt.in)
			assert.ErrorIs(t, err, core.ErrInvalidArg)
		})
	}
}

func TestSynthesizedConfigRuns(t *testing.T) {
	o, err := Synthesize(IMCInputs{K: 1, Tau: 0.5, Theta: 0.05, Lambda: 0.2, DtNs: testDt})
	require.NoError(t, err)

	cfg := o.Config()
	require.NoError(t, cfg.Validate(1))
	p := newStarted(t, 1, arena.New(4096), cfg)
	assert.True(t, p.Started())
}
