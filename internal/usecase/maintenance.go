package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"AnimaRex/internal/services/ensemble"
	"AnimaRex/internal/services/rl"
	pkgbadger "AnimaRex/pkg/badger"
	pkgcache "AnimaRex/pkg/cache"
	pkgcron "AnimaRex/pkg/cron"
	applogger "AnimaRex/pkg/logger"
)

// WeightsReloader refreshes the orchestrator's explicit ensemble weights from
// a JSON file or, when no file is configured, a cache key. The document is
// either an array aligned with the strategy list or an object keyed by
// strategy name.
type WeightsReloader struct {
	file       string
	cache      pkgcache.Service
	key        string
	strategies []string
	orch       *Orchestrator
	logger     *applogger.Logger
}

func NewWeightsReloader(file string, cache pkgcache.Service, key string, orch *Orchestrator, l *applogger.Logger) *WeightsReloader {
	if l == nil {
		l = applogger.NewNop()
	}
	return &WeightsReloader{
		file:       file,
		cache:      cache,
		key:        key,
		strategies: orch.Aggregator.Strategies(),
		orch:       orch,
		logger:     l.Named("weights"),
	}
}

// Reload installs the current weights. A missing source clears explicit
// weights; an invalid one keeps the previous set and returns the error.
func (r *WeightsReloader) Reload(ctx context.Context) error {
	raw, err := r.read(ctx)
	if err != nil {
		return err
	}
	if raw == nil {
		r.orch.SetWeights(nil)
		return nil
	}
	w, err := r.parse(raw)
	if err != nil {
		r.logger.Warn("weights rejected, keeping previous", applogger.Error(err))
		return err
	}
	norm, err := ensemble.Normalize(w, len(r.strategies))
	if err != nil {
		r.logger.Warn("weights rejected, keeping previous", applogger.Error(err))
		return err
	}
	r.orch.SetWeights(norm)
	r.logger.Info("ensemble weights loaded", applogger.Int("strategies", len(norm)))
	return nil
}

func (r *WeightsReloader) read(ctx context.Context) (json.RawMessage, error) {
	switch {
	case r.file != "":
		b, err := os.ReadFile(r.file)
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read weights: %w", err)
		}
		return b, nil
	case r.cache != nil && r.key != "":
		var raw json.RawMessage
		err := r.cache.Get(ctx, r.key, &raw)
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read weights: %w", err)
		}
		return raw, nil
	}
	return nil, nil
}

func (r *WeightsReloader) parse(raw json.RawMessage) ([]float64, error) {
	var arr []float64
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	var byName map[string]float64
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	w := make([]float64, len(r.strategies))
	for i, s := range r.strategies {
		w[i] = byName[s]
	}
	return w, nil
}

// MaintenanceSpecs holds the cron schedules. An empty spec disables its job.
// GCDiscardRatio is passed to badger's value log GC.
type MaintenanceSpecs struct {
	ReloadWeights  string
	Checkpoint     string
	BadgerGC       string
	GCDiscardRatio float64
}

// ScheduleMaintenance registers the periodic jobs on runner. reloader and db
// may be nil.
func ScheduleMaintenance(runner *pkgcron.Runner, specs MaintenanceSpecs, reloader *WeightsReloader, gate *rl.Gate, db *badger.DB, l *applogger.Logger) error {
	if l == nil {
		l = applogger.NewNop()
	}
	if reloader != nil && specs.ReloadWeights != "" {
		if _, err := runner.Add("reload_weights", specs.ReloadWeights, func(ctx context.Context) {
			_ = reloader.Reload(ctx)
		}); err != nil {
			return err
		}
	}
	if gate != nil && specs.Checkpoint != "" {
		if _, err := runner.Add("rl_checkpoint", specs.Checkpoint, func(ctx context.Context) {
			if err := gate.Save(ctx); err != nil {
				l.Error("rl checkpoint failed", applogger.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	if db != nil && specs.BadgerGC != "" {
		if _, err := runner.Add("badger_gc", specs.BadgerGC, func(context.Context) {
			n, err := pkgbadger.RunGC(db, specs.GCDiscardRatio)
			if err != nil {
				l.Error("badger gc failed", applogger.Error(err))
				return
			}
			l.Debug("badger gc done", applogger.Int("rewrites", n))
		}); err != nil {
			return err
		}
	}
	return nil
}
