package di

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"AnimaRex/internal/domain/repository"
	"AnimaRex/internal/handler/api"
	mid "AnimaRex/internal/middleware"
	internalrepo "AnimaRex/internal/repository"
	"AnimaRex/internal/service/broker"
	"AnimaRex/internal/service/session"
	"AnimaRex/internal/services/ensemble"
	"AnimaRex/internal/services/risk"
	"AnimaRex/internal/services/rl"
	"AnimaRex/internal/services/strategies"
	"AnimaRex/internal/usecase"
	pkgbadger "AnimaRex/pkg/badger"
	pkgcache "AnimaRex/pkg/cache"
	pkgch "AnimaRex/pkg/clickhouse"
	"AnimaRex/pkg/config"
	pkgcron "AnimaRex/pkg/cron"
	xhttp "AnimaRex/pkg/http"
	pkgkafka "AnimaRex/pkg/kafka"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
	"AnimaRex/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. Error logs are folded and shipped to
// kafka.log_topic when both are configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideSignalBus(cfg *config.Config, m repository.Metrics) *mid.SignalBus {
	return mid.NewSignalBus(
		mid.WithCapacity(cfg.Bus.Capacity),
		mid.WithPublishTimeout(cfg.Bus.PublishTimeout),
		mid.WithBusMetrics(m),
	)
}

// ProvideStrategies binds every configured strategy to its parameters.
func ProvideStrategies(cfg *config.Config) ([]strategies.Bound, error) {
	reg := strategies.Default()
	out := make([]strategies.Bound, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		b, err := reg.Bind(s.Name, s.Params)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func ProvideAggregator(cfg *config.Config, l *applogger.Logger) *ensemble.Aggregator {
	return ensemble.NewAggregator(cfg.StrategyNames(),
		ensemble.WithPayout(cfg.Ensemble.Payout),
		ensemble.WithStake(cfg.Ensemble.Stake),
		ensemble.WithLogger(l),
	)
}

// ProvideBadger opens the embedded store when it backs state, else nil.
func ProvideBadger(cfg *config.Config, l *applogger.Logger) (*badger.DB, error) {
	if cfg.State.Backend != "badger" {
		return nil, nil
	}
	db, err := pkgbadger.Open(pkgbadger.Config{
		Path:           cfg.Badger.Path,
		InMemory:       cfg.Badger.InMemory,
		SyncWrites:     cfg.Badger.SyncWrites,
		GCDiscardRatio: cfg.Badger.GCRatio,
	}, pkgbadger.WithLogger(l))
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}
	return db, nil
}

// ProvideRedis connects when Redis backs state or holds the ensemble
// weights. The result is a nil interface otherwise.
func ProvideRedis(cfg *config.Config) (pkgcache.Service, error) {
	if cfg.State.Backend != "redis" && cfg.Ensemble.WeightsRedis == "" {
		return nil, nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		pkgcache.WithRedisPoolSize(cfg.Redis.PoolSize),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

func ProvideStateStore(cfg *config.Config, db *badger.DB, rc pkgcache.Service) (repository.StateStore, error) {
	switch cfg.State.Backend {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("state backend redis: no client")
		}
		return internalrepo.NewRedisStateStore(rc), nil
	default:
		if db == nil {
			return nil, fmt.Errorf("state backend badger: no database")
		}
		return internalrepo.NewBadgerStateStore(db), nil
	}
}

// ProvideGate restores the learner. A load failure leaves an empty table.
func ProvideGate(cfg *config.Config, store repository.StateStore, m repository.Metrics, l *applogger.Logger) *rl.Gate {
	g := rl.New(rl.Config{
		LearningRate:   cfg.RL.LearningRate,
		Gamma:          cfg.RL.Gamma,
		Epsilon:        cfg.RL.Epsilon,
		EpsilonDecay:   cfg.RL.EpsilonDecay,
		EpsilonMin:     cfg.RL.EpsilonMin,
		Bins:           cfg.RL.Bins,
		DefaultBins:    cfg.RL.DefaultBins,
		EpisodeLength:  cfg.RL.EpisodeLength,
		RewardWindow:   cfg.RL.RewardWindow,
		InitialBalance: cfg.RL.InitialBalance,
		Seed:           cfg.RL.Seed,
		LegacyDir:      cfg.RL.LegacyDir,
	}, store, rl.WithLogger(l.Named("rl")), rl.WithMetrics(m))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Load(ctx); err != nil {
		l.Warn("learner state not restored", applogger.Error(err))
	}
	return g
}

func ProvideSupervisor(cfg *config.Config, store repository.StateStore, m repository.Metrics, l *applogger.Logger) (*risk.Supervisor, error) {
	s, err := risk.NewSupervisor(risk.SupervisorConfig{
		Ladder:     cfg.Risk.Ladder,
		Window:     cfg.Risk.Window,
		MinWinRate: cfg.Risk.MinWinRate,
	}, store, risk.WithSupervisorLogger(l.Named("risk")), risk.WithSupervisorMetrics(m))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Load(ctx); err != nil {
		l.Warn("ladder state not restored", applogger.Error(err))
	}
	return s, nil
}

func ProvideBreaker(cfg *config.Config, m repository.Metrics, l *applogger.Logger) *risk.Breaker {
	return risk.NewBreaker(risk.BreakerConfig{
		MaxDrawdown: cfg.Breaker.MaxDrawdown,
		MaxLosses:   cfg.Breaker.MaxLosses,
		Advisory:    cfg.Breaker.Advisory,
	}, risk.WithBreakerLogger(l.Named("breaker")), risk.WithBreakerMetrics(m))
}

// ProvideReconnectFunc returns the session factory for the configured broker
// mode. The paper account survives reconnects so its balance carries over.
func ProvideReconnectFunc(cfg *config.Config) session.ReconnectFunc {
	if cfg.Broker.Mode == "paper" {
		paper := broker.NewPaper(broker.PaperConfig{
			Balance:   cfg.Broker.PaperBalance,
			Payout:    cfg.Broker.PaperPayout,
			WinChance: cfg.Broker.PaperWinChance,
			Seed:      cfg.Broker.PaperSeed,
			Settle:    cfg.Broker.PaperSettle,
		})
		return func(ctx context.Context) (repository.Broker, error) {
			if err := paper.Connect(ctx); err != nil {
				return nil, err
			}
			return paper, nil
		}
	}
	bcfg := broker.BridgeConfig{
		URL:           cfg.Broker.URL,
		Timeout:       cfg.Broker.Timeout,
		RatePerSecond: cfg.Broker.RatePerSecond,
		Burst:         cfg.Broker.Burst,
		Token:         cfg.Broker.Token,
	}
	return func(ctx context.Context) (repository.Broker, error) {
		b := broker.NewBridge(bcfg)
		if err := b.Connect(ctx); err != nil {
			return nil, err
		}
		return b, nil
	}
}

// ProvideSessionCell connects once. On failure the cell starts empty and the
// watchdog keeps retrying.
func ProvideSessionCell(cfg *config.Config, fn session.ReconnectFunc, l *applogger.Logger) *session.Cell {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Broker.Timeout)
	defer cancel()
	b, err := fn(ctx)
	if err != nil {
		l.Warn("initial broker connect failed, watchdog will retry",
			applogger.String("mode", cfg.Broker.Mode),
			applogger.Error(err),
		)
		return session.NewCell(nil, l.Named("session"))
	}
	l.Info("broker session established", applogger.String("mode", cfg.Broker.Mode))
	return session.NewCell(b, l.Named("session"))
}

// ProvideClickHouseClient creates a ClickHouse client and applies the outcome
// schema, or returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.OutcomeSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideBarSource picks the bar backend and fronts it with the short-lived
// window cache.
func ProvideBarSource(cfg *config.Config, cell *session.Cell, ch *pkgch.Client, l *applogger.Logger) repository.BarSource {
	var src repository.BarSource
	if cfg.Bars.Source == "clickhouse" && ch != nil {
		src = internalrepo.NewCHBarSource(ch, l)
	} else {
		src = internalrepo.NewBrokerBarSource(cell)
	}
	return internalrepo.NewCachedBarSource(src, cfg.Bars.CacheTTL)
}

func ProvideOutcomeLog(ch *pkgch.Client, l *applogger.Logger) repository.OutcomeLog {
	if ch == nil {
		return internalrepo.NewLogOutcomeLog(l)
	}
	return internalrepo.NewClickHouseOutcomeLog(ch, l)
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil || cfg.Kafka.DecisionTopic == "" {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.DecisionTopic)
}

func ProvideOrchestrator(
	cfg *config.Config,
	bus *mid.SignalBus,
	cell *session.Cell,
	agg *ensemble.Aggregator,
	gate *rl.Gate,
	sup *risk.Supervisor,
	brk *risk.Breaker,
	outcomes repository.OutcomeLog,
	pub repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(usecase.OrchestratorConfig{
		ReceiveTimeout:  cfg.Bus.ReceiveTimeout,
		RewardThreshold: cfg.RL.RewardThreshold,
		Duration:        cfg.Trade.Duration,
		ResultTimeout:   cfg.Trade.ResultTimeout,
		History:         cfg.Ensemble.History,
	}, usecase.OrchestratorDeps{
		Bus:        bus,
		Cell:       cell,
		Aggregator: agg,
		Gate:       gate,
		Supervisor: sup,
		Breaker:    brk,
		Outcomes:   outcomes,
		Publisher:  pub,
		Metrics:    m,
		Logger:     l,
	})
}

func ProvideWeightsReloader(cfg *config.Config, rc pkgcache.Service, orch *usecase.Orchestrator, l *applogger.Logger) *usecase.WeightsReloader {
	return usecase.NewWeightsReloader(cfg.Ensemble.WeightsFile, rc, cfg.Ensemble.WeightsRedis, orch, l)
}

func ProvideWorkerPool(
	cfg *config.Config,
	bars repository.BarSource,
	bus *mid.SignalBus,
	bound []strategies.Bound,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.WorkerPool {
	return usecase.NewWorkerPool(usecase.WorkerConfig{
		Interval:       cfg.Workers.Interval,
		ErrorThreshold: cfg.Workers.ErrorThreshold,
		PauseDuration:  cfg.Workers.PauseDuration,
		Window:         cfg.Workers.Window,
		Timeframe:      repository.NormalizeTimeframe(cfg.Workers.Timeframe),
		Jitter:         cfg.Workers.Jitter,
	}, bars, bus, cfg.Markets, bound, m, l)
}

// ProvideMonitors builds the balance watchdog and the ping keep-alive. Both
// reconnect through the same cell.
func ProvideMonitors(cfg *config.Config, cell *session.Cell, fn session.ReconnectFunc, m repository.Metrics, l *applogger.Logger) []*usecase.Watchdog {
	return []*usecase.Watchdog{
		usecase.NewWatchdog(cell, fn, cfg.Watchdog.Interval, m, l),
		usecase.NewKeepAlive(cell, fn, cfg.Watchdog.PingInterval, m, l),
	}
}

// ProvideCron schedules weight reloads, learner checkpoints and badger GC.
func ProvideCron(cfg *config.Config, reloader *usecase.WeightsReloader, gate *rl.Gate, db *badger.DB, l *applogger.Logger) (*pkgcron.Runner, error) {
	runner := pkgcron.New(l.Named("cron"), context.Background())
	err := usecase.ScheduleMaintenance(runner, usecase.MaintenanceSpecs{
		ReloadWeights:  cfg.Ensemble.ReloadCron,
		Checkpoint:     cfg.RL.CheckpointCron,
		BadgerGC:       cfg.Badger.GCCron,
		GCDiscardRatio: cfg.Badger.GCRatio,
	}, reloader, gate, db, l)
	if err != nil {
		return nil, err
	}
	return runner, nil
}

// ProvideKafkaConsumer creates the external signal consumer, or nil when no
// signal topic is configured.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.SignalTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.TraceHook)
	return consumer, nil
}

// ProvideKafkaSignalsHandler deduplicates through Redis when a client exists,
// otherwise through a bounded in-process cache the handler owns.
func ProvideKafkaSignalsHandler(cfg *config.Config, bus *mid.SignalBus, rc pkgcache.Service, m repository.Metrics, l *applogger.Logger) *usecase.KafkaSignalsHandler {
	h := usecase.NewKafkaSignalsHandler(cfg.Kafka.SignalTopic, bus, m, l)
	if !cfg.Kafka.Enabled || cfg.Kafka.SignalTopic == "" || cfg.Kafka.DedupWindow <= 0 {
		return h
	}
	if rc != nil {
		h.SetDedup(rc, cfg.Kafka.DedupWindow, false)
		return h
	}
	mc := pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(10_000),
		pkgcache.WithMemoryCleanup(cfg.Kafka.DedupWindow),
	)
	h.SetDedup(mc, cfg.Kafka.DedupWindow, true)
	return h
}

func ProvideHTTPServer(cfg *config.Config, orch *usecase.Orchestrator, bus *mid.SignalBus, rc pkgcache.Service, ch *pkgch.Client, l *applogger.Logger) *xhttp.Server {
	checks := map[string]api.HealthCheck{}
	if rc != nil {
		checks["redis"] = rc.Ping
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return xhttp.NewServer(
		[]xhttp.Handler{api.NewStatusEchoHandler(l, orch, bus, checks)},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithServerLogger(l),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	workers *usecase.WorkerPool,
	orch *usecase.Orchestrator,
	monitors []*usecase.Watchdog,
	reloader *usecase.WeightsReloader,
	runner *pkgcron.Runner,
	gate *rl.Gate,
	cell *session.Cell,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	pub repository.EventPublisher,
	producer *pkgkafka.Producer,
	db *badger.DB,
	rc pkgcache.Service,
	ch *pkgch.Client,
) *server.App {
	return server.New(cfg, l, server.Components{
		Workers:        workers,
		Orchestrator:   orch,
		Monitors:       monitors,
		Reloader:       reloader,
		Cron:           runner,
		Gate:           gate,
		Cell:           cell,
		HTTP:           httpServer,
		Consumer:       consumer,
		SignalsHandler: kh,
		Publisher:      pub,
		Producer:       producer,
		Badger:         db,
		Redis:          rc,
		CH:             ch,
	})
}
