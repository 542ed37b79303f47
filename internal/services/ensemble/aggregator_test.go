package ensemble

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"AnimaRex/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = []string{"mhi1_minoria", "five_flip", "padrao_23"}

func outcome(t *testing.T, strategy, dir string, res models.Outcome) models.SignalOutcome {
	t.Helper()
	s, err := models.NewSignal("EURUSD", dir, strategy, time.Time{})
	require.NoError(t, err)
	return models.SignalOutcome{Signal: s, Result: res}
}

func sum(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

func TestExplicitWeightsAreNormalized(t *testing.T) {
	a := NewAggregator(names)
	rng := rand.New(rand.NewSource(7))
	batch := []models.SignalOutcome{outcome(t, "five_flip", "PUT", models.OutcomeWin)}

	for i := 0; i < 200; i++ {
		w := []float64{rng.Float64() * 10, rng.Float64() * 10, rng.Float64()*10 + 0.01}
		d, err := a.Aggregate(batch, w)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, sum(d.Weights), 1e-9)
	}
}

func TestExplicitWeightsLengthMismatch(t *testing.T) {
	a := NewAggregator(names)
	_, err := a.Aggregate(nil, []float64{1, 2})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
}

func TestSoftmaxWeightsFavourWinners(t *testing.T) {
	a := NewAggregator(names, WithPayout(0.8), WithStake(1))
	batch := []models.SignalOutcome{
		outcome(t, "mhi1_minoria", "CALL", models.OutcomeWin),
		outcome(t, "mhi1_minoria", "CALL", models.OutcomeWin),
		outcome(t, "five_flip", "PUT", models.OutcomeLoss),
	}
	d, err := a.Aggregate(batch, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sum(d.Weights), 1e-9)
	assert.Greater(t, d.Weight("mhi1_minoria"), d.Weight("padrao_23"))
	assert.Greater(t, d.Weight("padrao_23"), d.Weight("five_flip"))
	assert.Equal(t, models.DirectionCall, d.Direction)
}

func TestPutWinsWhenHeavier(t *testing.T) {
	a := NewAggregator(names)
	batch := []models.SignalOutcome{
		outcome(t, "mhi1_minoria", "CALL", models.OutcomeWin),
		outcome(t, "five_flip", "PUT", models.OutcomeWin),
	}
	d, err := a.Aggregate(batch, []float64{1, 3, 0})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionPut, d.Direction)
}

func TestTieResolvesToCall(t *testing.T) {
	a := NewAggregator(names)
	batch := []models.SignalOutcome{
		outcome(t, "mhi1_minoria", "CALL", models.OutcomeWin),
		outcome(t, "five_flip", "PUT", models.OutcomeWin),
	}
	d, err := a.Aggregate(batch, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionCall, d.Direction)
}

func TestUnknownStrategiesGiveNeutralDecision(t *testing.T) {
	a := NewAggregator(names)
	batch := []models.SignalOutcome{
		outcome(t, "mystery", "CALL", models.OutcomeWin),
		outcome(t, "other", "PUT", models.OutcomeLoss),
	}
	d, err := a.Aggregate(batch, nil)
	require.NoError(t, err)

	assert.Equal(t, models.DirectionNone, d.Direction)
	assert.Equal(t, names, d.Strategies)
	for _, w := range d.Weights {
		assert.InDelta(t, 1.0/3, w, 1e-12)
	}
}

func TestSoftmaxIsStableForLargeInputs(t *testing.T) {
	w := Softmax([]float64{1000, 1000, -1000})
	for _, v := range w {
		assert.False(t, math.IsNaN(v))
	}
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 0.0, w[2], 1e-12)
}

func TestNormalizeRejectsBadVectors(t *testing.T) {
	for _, w := range [][]float64{{0, 0, 0}, {-1, 2, 3}, {math.NaN(), 1, 1}} {
		_, err := Normalize(w, 3)
		assert.Error(t, err)
	}
}
