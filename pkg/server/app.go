package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/service/session"
	"AnimaRex/internal/services/rl"
	"AnimaRex/internal/usecase"
	pkgcache "AnimaRex/pkg/cache"
	pkgch "AnimaRex/pkg/clickhouse"
	"AnimaRex/pkg/config"
	pkgcron "AnimaRex/pkg/cron"
	xhttp "AnimaRex/pkg/http"
	pkgkafka "AnimaRex/pkg/kafka"
	applogger "AnimaRex/pkg/logger"
)

// Components is everything the App starts and tears down. Infrastructure
// clients may be nil when disabled in config.
type Components struct {
	Workers      *usecase.WorkerPool
	Orchestrator *usecase.Orchestrator
	Monitors     []*usecase.Watchdog
	Reloader     *usecase.WeightsReloader
	Cron         *pkgcron.Runner
	Gate         *rl.Gate
	Cell         *session.Cell
	HTTP         *xhttp.Server

	Consumer       *pkgkafka.Consumer
	SignalsHandler pkgkafka.MessageHandler

	Publisher domrepo.EventPublisher
	Producer  *pkgkafka.Producer
	Badger    *badger.DB
	Redis     pkgcache.Service
	CH        *pkgch.Client
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg    *config.Config
	logger *applogger.Logger
	c      Components

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config, logger *applogger.Logger, c Components) *App {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &App{cfg: cfg, logger: logger.Named("app"), c: c}
}

// Run starts every task and blocks until SIGINT/SIGTERM or an HTTP server
// failure, then shuts down.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-a.c.HTTP.Err():
		a.logger.Error("http server failed", applogger.Error(err))
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Start launches the long-lived tasks under a context derived from parent.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	if a.c.Reloader != nil {
		if err := a.c.Reloader.Reload(ctx); err != nil {
			a.logger.Warn("initial weights load failed, using payoff softmax", applogger.Error(err))
		}
	}

	a.c.Workers.Start(ctx)
	a.logger.Info("workers started",
		applogger.Int("workers", a.c.Workers.Size()),
		applogger.Strings("markets", a.cfg.Markets),
	)

	a.goRun(func() { a.c.Orchestrator.Run(ctx) })
	for _, m := range a.c.Monitors {
		a.goRun(func() { m.Run(ctx) })
	}

	if a.c.Cron != nil {
		a.c.Cron.Start()
	}

	if a.c.Consumer != nil && a.c.SignalsHandler != nil {
		a.c.Consumer.RegisterHandler(a.c.SignalsHandler)
		if err := a.c.Consumer.Start(); err != nil {
			a.logger.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.logger.Info("kafka consumer started", applogger.String("topic", a.c.SignalsHandler.Topic()))
		}
	}

	if err := a.c.HTTP.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		cancel()
		return err
	}
	a.logger.Info("http server started", applogger.Int("port", a.cfg.Server.Port))
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Shutdown stops the ingress paths first, then the pipeline, then closes
// the infrastructure clients. It returns the first HTTP shutdown error.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var httpErr error
	if a.c.HTTP != nil {
		if httpErr = a.c.HTTP.Stop(ctx); httpErr != nil {
			a.logger.Error("http shutdown error", applogger.Error(httpErr))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Cron != nil {
		a.c.Cron.Stop()
	}

	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.c.Workers.Wait()
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("tasks still running at shutdown deadline")
	}

	if a.c.Gate != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.c.Gate.Save(saveCtx); err != nil {
			a.logger.Warn("final rl checkpoint failed", applogger.Error(err))
		}
		cancel()
	}

	a.closeAll()
	a.logger.Info("shutdown complete")
	return httpErr
}

func (a *App) closeAll() {
	// The collector flushes through the producer, so it goes first.
	a.logger.RemoveCollector()

	type namedCloser struct {
		name string
		fn   func() error
	}
	var closers []namedCloser
	if c, ok := a.c.SignalsHandler.(io.Closer); ok {
		closers = append(closers, namedCloser{"signals handler", c.Close})
	}
	if a.c.Publisher != nil {
		closers = append(closers, namedCloser{"publisher", a.c.Publisher.Close})
	}
	if a.c.Producer != nil {
		closers = append(closers, namedCloser{"kafka producer", a.c.Producer.Close})
	}
	if a.c.Cell != nil {
		closers = append(closers, namedCloser{"broker session", a.c.Cell.Close})
	}
	if a.c.CH != nil {
		closers = append(closers, namedCloser{"clickhouse", a.c.CH.Close})
	}
	if a.c.Redis != nil {
		closers = append(closers, namedCloser{"redis", a.c.Redis.Close})
	}
	if a.c.Badger != nil {
		closers = append(closers, namedCloser{"badger", a.c.Badger.Close})
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			a.logger.Warn("close error", applogger.String("client", c.name), applogger.Error(err))
		}
	}
}
