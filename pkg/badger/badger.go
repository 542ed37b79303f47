// Package badger opens the embedded key-value store used for component state.
package badger

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	applogger "AnimaRex/pkg/logger"
)

type Config struct {
	// Path is ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCDiscardRatio is the garbage fraction a value log file needs before
	// RunGC rewrites it.
	GCDiscardRatio float64
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *applogger.Logger
}

// WithLogger routes badger's internal warnings and errors to l.
func WithLogger(l *applogger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// DefaultConfig is the production profile: durable writes on disk.
func DefaultConfig() Config {
	return Config{
		Path:           "data/state",
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig is the test profile.
func InMemoryConfig() Config {
	return Config{InMemory: true, GCDiscardRatio: 0.5}
}

type badgerLogger struct {
	l *applogger.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(format, args...))
}

// Info and debug chatter is dropped.
func (b badgerLogger) Infof(string, ...interface{})  {}
func (b badgerLogger) Debugf(string, ...interface{}) {}

// Open opens the database, creating the directory when needed. The caller
// closes the returned DB.
func Open(cfg Config, opts ...Option) (*badger.DB, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for a persistent database")
	}

	var bo badger.Options
	if cfg.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger dir %s: %w", cfg.Path, err)
		}
		bo = badger.DefaultOptions(cfg.Path)
	}
	bo = bo.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if o.logger != nil {
		bo = bo.WithLogger(badgerLogger{l: o.logger})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// RunGC rewrites value log files until badger reports nothing left to
// collect. In-memory databases have no value log and return immediately.
func RunGC(db *badger.DB, ratio float64) (rewrites int, err error) {
	if db == nil || db.Opts().InMemory {
		return 0, nil
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	for {
		err := db.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return rewrites, nil
		}
		if err != nil {
			return rewrites, fmt.Errorf("badger gc: %w", err)
		}
		rewrites++
	}
}
