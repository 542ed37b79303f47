package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgbadger "AnimaRex/pkg/badger"
	pkgcache "AnimaRex/pkg/cache"
	pkgcron "AnimaRex/pkg/cron"
)

func writeWeights(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestWeightsReloader_File(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []float64
		wantErr bool
	}{
		{name: "array", body: `[1, 3]`, want: []float64{0.25, 0.75}},
		{name: "object by strategy name", body: `{"melhor_de_3": 2, "five_flip": 2}`, want: []float64{0.5, 0.5}},
		{name: "object missing a strategy", body: `{"melhor_de_3": 1}`, want: []float64{0, 1}},
		{name: "wrong length keeps previous", body: `[1, 2, 3]`, wantErr: true},
		{name: "negative keeps previous", body: `[1, -1]`, wantErr: true},
		{name: "garbage keeps previous", body: `weights`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 1, 10)
			h.orch.SetWeights([]float64{0.9, 0.1})
			r := NewWeightsReloader(writeWeights(t, tt.body), nil, "", h.orch, nil)

			err := r.Reload(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, []float64{0.9, 0.1}, h.orch.explicitWeights())
				return
			}
			require.NoError(t, err)
			assert.InDeltaSlice(t, tt.want, h.orch.explicitWeights(), 1e-9)
		})
	}
}

func TestWeightsReloader_MissingFileClears(t *testing.T) {
	h := newHarness(t, 1, 10)
	h.orch.SetWeights([]float64{0.9, 0.1})
	r := NewWeightsReloader(filepath.Join(t.TempDir(), "absent.json"), nil, "", h.orch, nil)

	require.NoError(t, r.Reload(context.Background()))
	assert.Nil(t, h.orch.explicitWeights())
}

func TestWeightsReloader_CacheKey(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1, 10)
	c := pkgcache.NewMemoryCache()
	defer c.Close()
	r := NewWeightsReloader("", c, "anima:weights", h.orch, nil)

	require.NoError(t, r.Reload(ctx))
	assert.Nil(t, h.orch.explicitWeights())

	require.NoError(t, c.Set(ctx, "anima:weights", "[3, 1]", time.Minute))
	require.NoError(t, r.Reload(ctx))
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, h.orch.explicitWeights(), 1e-9)
}

func TestScheduleMaintenance(t *testing.T) {
	h := newHarness(t, 1, 10)
	db, err := pkgbadger.Open(pkgbadger.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	tests := []struct {
		name    string
		specs   MaintenanceSpecs
		jobs    int
		wantErr bool
	}{
		{
			name:  "all jobs",
			specs: MaintenanceSpecs{ReloadWeights: "@every 1m", Checkpoint: "0 */5 * * * *", BadgerGC: "0 0 * * * *", GCDiscardRatio: 0.5},
			jobs:  3,
		},
		{name: "empty specs disable jobs", specs: MaintenanceSpecs{Checkpoint: "@every 1m"}, jobs: 1},
		{name: "bad spec", specs: MaintenanceSpecs{Checkpoint: "every minute"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := pkgcron.New(nil, context.Background())
			reloader := NewWeightsReloader("", nil, "", h.orch, nil)
			err := ScheduleMaintenance(runner, tt.specs, reloader, h.gate, db, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.jobs, runner.Len())
		})
	}
}
