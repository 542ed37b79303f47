package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal    *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	signalsDropped prometheus.Counter
	tradesTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	heartbeat      *prometheus.GaugeVec
	ladderLevel    prometheus.Gauge
	epsilon        prometheus.Gauge
	suspended      prometheus.Gauge
	balance        prometheus.Gauge
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg. Tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_errors_total",
				Help: "Errors caught per pipeline component",
			},
			[]string{"component"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_signals_total",
				Help: "Signals published by strategy workers",
			},
			[]string{"market", "strategy"},
		),
		signalsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "anima_signals_dropped_total",
			Help: "Signals dropped because the channel stayed full",
		}),
		tradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anima_trades_total",
				Help: "Executed trades by result",
			},
			[]string{"result"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anima_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		heartbeat: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "anima_thread_heartbeat",
				Help: "Unix time of the last loop iteration per long-lived task",
			},
			[]string{"thread"},
		),
		ladderLevel: f.NewGauge(prometheus.GaugeOpts{
			Name: "anima_ladder_level",
			Help: "Current martingale ladder index",
		}),
		epsilon: f.NewGauge(prometheus.GaugeOpts{
			Name: "anima_rl_epsilon",
			Help: "Exploration rate of the reinforcement gate",
		}),
		suspended: f.NewGauge(prometheus.GaugeOpts{
			Name: "anima_breaker_suspended",
			Help: "1 while the equity circuit-breaker holds trading",
		}),
		balance: f.NewGauge(prometheus.GaugeOpts{
			Name: "anima_balance",
			Help: "Last observed account balance",
		}),
	}
}

func (r *Recorder) RecordError(component string) {
	r.errorsTotal.WithLabelValues(component).Inc()
}

func (r *Recorder) RecordSignal(market, strategy string) {
	r.signalsTotal.WithLabelValues(market, strategy).Inc()
}

func (r *Recorder) RecordSignalDropped() { r.signalsDropped.Inc() }

func (r *Recorder) RecordTrade(result string) {
	r.tradesTotal.WithLabelValues(result).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordHeartbeat(thread string) {
	r.heartbeat.WithLabelValues(thread).Set(float64(time.Now().Unix()))
}

func (r *Recorder) RecordLadderLevel(level int) { r.ladderLevel.Set(float64(level)) }

func (r *Recorder) RecordEpsilon(eps float64) { r.epsilon.Set(eps) }

func (r *Recorder) RecordSuspended(suspended bool) {
	if suspended {
		r.suspended.Set(1)
		return
	}
	r.suspended.Set(0)
}

func (r *Recorder) RecordBalance(balance float64) { r.balance.Set(balance) }

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordError(string)            {}
func (Nop) RecordSignal(string, string)   {}
func (Nop) RecordSignalDropped()          {}
func (Nop) RecordTrade(string)            {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordHeartbeat(string)        {}
func (Nop) RecordLadderLevel(int)         {}
func (Nop) RecordEpsilon(float64)         {}
func (Nop) RecordSuspended(bool)          {}
func (Nop) RecordBalance(float64)         {}
