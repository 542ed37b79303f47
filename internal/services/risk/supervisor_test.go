package risk

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnimaRex/internal/domain/models"
)

type kvStore struct {
	data    map[string][]byte
	saveErr error
	saves   int
}

func newKV() *kvStore { return &kvStore{data: map[string][]byte{}} }

func (s *kvStore) Load(_ context.Context, key string, dest any) error {
	b, ok := s.data[key]
	if !ok {
		return models.ErrNotFound
	}
	return json.Unmarshal(b, dest)
}

func (s *kvStore) Save(_ context.Context, key string, v any) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	b, _ := json.Marshal(v)
	s.data[key] = b
	s.saves++
	return nil
}

func (s *kvStore) Delete(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func newSupervisor(t *testing.T, store *kvStore, window int, minRate float64) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{
		Ladder:     []float64{1, 2, 4, 8, 16},
		Window:     window,
		MinWinRate: minRate,
	}, store)
	require.NoError(t, err)
	return s
}

func TestSupervisor_LadderMoves(t *testing.T) {
	s := newSupervisor(t, newKV(), 100, 0.6)
	ctx := context.Background()

	assert.Equal(t, 1.0, s.CurrentStake())

	for i, want := range []float64{2, 4, 8, 16, 16, 16} {
		require.NoError(t, s.Register(ctx, models.OutcomeLoss))
		assert.Equal(t, want, s.CurrentStake(), "loss %d", i+1)
	}

	require.NoError(t, s.Register(ctx, models.OutcomeWin))
	assert.Equal(t, 0, s.Level())
	assert.Equal(t, 1.0, s.CurrentStake())
}

func TestSupervisor_RandomOutcomesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, window := range []int{1, 3, 5, 20} {
		s := newSupervisor(t, newKV(), window, 0.6)
		ctx := context.Background()

		for i := 0; i < 500; i++ {
			before := s.Level()
			outcome := models.OutcomeLoss
			if rng.Intn(2) == 0 {
				outcome = models.OutcomeWin
			}
			require.NoError(t, s.Register(ctx, outcome))

			after := s.Level()
			assert.GreaterOrEqual(t, after, 0)
			assert.LessOrEqual(t, after, 4)
			if outcome == models.OutcomeLoss {
				assert.GreaterOrEqual(t, after, before, "window %d step %d", window, i)
			} else {
				assert.Equal(t, 0, after, "window %d step %d", window, i)
			}
		}
	}
}

func TestSupervisor_LowWinRateClimbsFaster(t *testing.T) {
	s := newSupervisor(t, newKV(), 2, 0.6)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	assert.Equal(t, 1, s.Level())

	// window now full with 0% wins: the loss step plus the window step
	require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	assert.Equal(t, 3, s.Level())
}

func TestSupervisor_HealthyWindowHoldsLevelAfterLoss(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []models.Outcome
		want     int
	}{
		{
			name:     "rate at minimum cancels the loss step",
			outcomes: []models.Outcome{models.OutcomeWin, models.OutcomeWin, models.OutcomeLoss, models.OutcomeLoss},
			want:     1,
		},
		{
			name:     "window not yet full keeps the loss step",
			outcomes: []models.Outcome{models.OutcomeWin, models.OutcomeLoss, models.OutcomeLoss},
			want:     2,
		},
		{
			name:     "rate below minimum climbs twice",
			outcomes: []models.Outcome{models.OutcomeWin, models.OutcomeLoss, models.OutcomeLoss, models.OutcomeLoss},
			want:     4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSupervisor(t, newKV(), 4, 0.5)
			for _, o := range tt.outcomes {
				require.NoError(t, s.Register(context.Background(), o))
			}
			assert.Equal(t, tt.want, s.Level())
		})
	}
}

func TestSupervisor_LossAtTopNeverRetreats(t *testing.T) {
	s := newSupervisor(t, newKV(), 10, 0.5)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Register(ctx, models.OutcomeWin))
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	}
	require.Equal(t, 4, s.Level())

	// window fills at 50% wins while already at the top level
	require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	assert.Equal(t, 4, s.Level())
}

func TestSupervisor_PersistsEveryChange(t *testing.T) {
	store := newKV()
	s := newSupervisor(t, store, 100, 0.6)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	require.NoError(t, s.Register(ctx, models.OutcomeWin))
	require.NoError(t, s.Register(ctx, models.OutcomeWin))
	assert.Equal(t, 3, store.saves)

	require.NoError(t, s.Register(ctx, models.OutcomeLoss))
	restored := newSupervisor(t, store, 100, 0.6)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, 1, restored.Level())
	assert.Equal(t, 2.0, restored.CurrentStake())
}

func TestSupervisor_LoadIgnoresOutOfRange(t *testing.T) {
	store := newKV()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, LadderKey, LadderState{Level: 9}))

	s := newSupervisor(t, store, 10, 0.6)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 0, s.Level())
}

func TestSupervisor_SaveFailureKeepsLevel(t *testing.T) {
	store := newKV()
	store.saveErr = errors.New("unavailable")
	s := newSupervisor(t, store, 10, 0.6)

	err := s.Register(context.Background(), models.OutcomeLoss)
	require.ErrorIs(t, err, models.ErrPersistence)
	assert.Equal(t, 1, s.Level())
}

func TestSupervisor_RejectsBadInput(t *testing.T) {
	_, err := NewSupervisor(SupervisorConfig{Window: 3}, newKV())
	assert.ErrorIs(t, err, models.ErrValidation)

	s := newSupervisor(t, newKV(), 3, 0.5)
	assert.ErrorIs(t, s.Register(context.Background(), models.Outcome("DRAW")), models.ErrValidation)
	assert.Equal(t, 0, s.Level())
}
