package rl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// StateVersion is the schema version written by this build.
	StateVersion = 2
	// StateKey is the state-store slot holding LearnerState.
	StateKey = "rl_state"

	LegacyQTableFile  = "q_table.json"
	LegacyEpsilonFile = "epsilon.json"
)

// LearnerState is the durable form of the gate.
type LearnerState struct {
	Version int                  `json:"version"`
	QTable  map[string][]float64 `json:"q_table"`
	Epsilon float64              `json:"epsilon"`
}

// LegacyLearnerState is the unversioned layout: a bare table file plus an
// optional exploration-rate file.
type LegacyLearnerState struct {
	QTable  map[string][]float64
	Epsilon *float64
}

// MigrateLegacy converts the legacy layout. Action vectors are padded or cut
// to nActions; a missing or out-of-range epsilon falls back to defaultEps.
func MigrateLegacy(l LegacyLearnerState, nActions int, defaultEps float64) LearnerState {
	q := make(map[string][]float64, len(l.QTable))
	for k, v := range l.QTable {
		q[k] = fitActions(v, nActions)
	}
	eps := defaultEps
	if l.Epsilon != nil && *l.Epsilon >= 0 && *l.Epsilon <= 1 {
		eps = *l.Epsilon
	}
	return LearnerState{Version: StateVersion, QTable: q, Epsilon: eps}
}

func fitActions(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}

// LoadLegacy reads the legacy files from dir. found is false only when both
// files are absent; an epsilon file alone yields an empty table.
func LoadLegacy(dir string) (state LegacyLearnerState, found bool, err error) {
	if dir == "" {
		return state, false, nil
	}
	b, err := os.ReadFile(filepath.Join(dir, LegacyQTableFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return state, true, fmt.Errorf("read legacy table: %w", err)
	default:
		found = true
		if err := json.Unmarshal(b, &state.QTable); err != nil {
			return state, true, fmt.Errorf("decode legacy table: %w", err)
		}
	}

	b, err = os.ReadFile(filepath.Join(dir, LegacyEpsilonFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return state, true, fmt.Errorf("read legacy epsilon: %w", err)
	default:
		found = true
		var eps float64
		if err := json.Unmarshal(b, &eps); err != nil {
			return state, true, fmt.Errorf("decode legacy epsilon: %w", err)
		}
		state.Epsilon = &eps
	}
	return state, found, nil
}

// RemoveLegacy deletes both legacy files, ignoring ones already gone.
func RemoveLegacy(dir string) error {
	for _, name := range []string{LegacyQTableFile, LegacyEpsilonFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}
