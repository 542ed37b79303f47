package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"AnimaRex/internal/domain/models"
	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/middleware"
	pkgcache "AnimaRex/pkg/cache"
	pkgkafka "AnimaRex/pkg/kafka"
	applogger "AnimaRex/pkg/logger"
	"AnimaRex/pkg/metrics"
)

// KafkaSignalsHandler feeds externally produced signals into the signal bus.
type KafkaSignalsHandler struct {
	topic   string
	bus     *middleware.SignalBus
	metrics domrepo.Metrics
	logger  *applogger.Logger

	dedup       pkgcache.Service
	dedupWindow time.Duration
	ownsDedup   bool
}

func NewKafkaSignalsHandler(topic string, bus *middleware.SignalBus, m domrepo.Metrics, l *applogger.Logger) *KafkaSignalsHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaSignalsHandler{topic: topic, bus: bus, metrics: m, logger: l.Named("kafka_signals")}
}

// SetDedup drops redelivered messages seen within window. When owned is
// true, Close also closes c.
func (h *KafkaSignalsHandler) SetDedup(c pkgcache.Service, window time.Duration, owned bool) {
	h.dedup, h.dedupWindow, h.ownsDedup = c, window, owned
}

func (h *KafkaSignalsHandler) Topic() string { return h.topic }

// Close releases a dedup cache the handler owns.
func (h *KafkaSignalsHandler) Close() error {
	if h.ownsDedup && h.dedup != nil {
		return h.dedup.Close()
	}
	return nil
}

// incoming message schema: {id, market, direction, strategy, ts}; ts is unix
// seconds or milliseconds and defaults to now. id is optional.
func (h *KafkaSignalsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		ID        string `json:"id"`
		Market    string `json:"market"`
		Direction string `json:"direction"`
		Strategy  string `json:"strategy"`
		TS        int64  `json:"ts"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode signal: %w: %v", pkgkafka.ErrNonRetryable, err)
	}

	var ts time.Time
	switch {
	case m.TS > 1e11:
		ts = time.UnixMilli(m.TS)
	case m.TS > 0:
		ts = time.Unix(m.TS, 0)
	}
	if m.Strategy == "" {
		m.Strategy = "external"
	}
	sig, err := models.NewSignal(m.Market, m.Direction, m.Strategy, ts)
	if err != nil {
		h.metrics.RecordError("consumer_validate")
		return fmt.Errorf("%w: %v", pkgkafka.ErrNonRetryable, err)
	}

	if dup, err := h.seen(ctx, m.ID, sig, m.TS > 0); err != nil {
		h.logger.Warn("dedup check failed, accepting signal", applogger.Error(err))
	} else if dup {
		h.logger.Debug("duplicate external signal dropped",
			applogger.String("market", sig.Market),
			applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		)
		return nil
	}

	if !h.bus.Publish(ctx, sig) {
		h.logger.Warn("signal bus full, external signal dropped",
			applogger.String("market", sig.Market),
			applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		)
		return nil
	}
	h.metrics.RecordSignal(sig.Market, sig.Strategy)
	return nil
}

// seen reports whether the message was already accepted. Messages with
// neither an id nor an explicit timestamp are never deduplicated.
func (h *KafkaSignalsHandler) seen(ctx context.Context, id string, sig models.Signal, hasTS bool) (bool, error) {
	if h.dedup == nil || h.dedupWindow <= 0 {
		return false, nil
	}
	key := pkgcache.GenerateKey("signal", id)
	if id == "" {
		if !hasTS {
			return false, nil
		}
		key = pkgcache.GenerateKeyWithParams("signal", sig.Market, sig.Direction, sig.Strategy, sig.Timestamp.UnixMilli())
	}
	ok, err := h.dedup.TryLock(ctx, key, h.dedupWindow)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

var _ pkgkafka.MessageHandler = (*KafkaSignalsHandler)(nil)
