package usecase

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"

	"AnimaRex/internal/domain/models"
	"AnimaRex/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Load(_ context.Context, key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return models.ErrNotFound
	}
	return json.Unmarshal(b, dest)
}

func (s *memStore) Save(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = b
	s.mu.Unlock()
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

type recordingLog struct {
	mu      sync.Mutex
	signals []models.SignalOutcome
	trades  []models.TradeRecord
	rl      []models.RLMetric
	errs    []models.ErrorRecord
	panicRL bool
}

func (r *recordingLog) RecordSignal(_ context.Context, s models.SignalOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
	return nil
}

func (r *recordingLog) RecordTrade(_ context.Context, t models.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return nil
}

func (r *recordingLog) RecordRLMetric(_ context.Context, m models.RLMetric) error {
	if r.panicRL {
		panic("outcome log exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rl = append(r.rl, m)
	return nil
}

func (r *recordingLog) RecordError(_ context.Context, e models.ErrorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
	return nil
}

func (r *recordingLog) tradeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DecisionEvent
}

func (p *recordingPublisher) PublishDecision(_ context.Context, e models.DecisionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type countingMetrics struct {
	metrics.Nop
	mu         sync.Mutex
	errors     map[string]int
	signals    int
	heartbeats map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, heartbeats: map[string]int{}}
}

func (m *countingMetrics) RecordError(component string) {
	m.mu.Lock()
	m.errors[component]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordSignal(string, string) {
	m.mu.Lock()
	m.signals++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordHeartbeat(thread string) {
	m.mu.Lock()
	m.heartbeats[thread]++
	m.mu.Unlock()
}

func (m *countingMetrics) errorCount(component string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[component]
}

func (m *countingMetrics) signalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals
}

func newTestRand() *rand.Rand { return rand.New(rand.NewSource(42)) }
