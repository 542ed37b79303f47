package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) total() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries, count := 0, 0
	for _, b := range p.batches {
		for _, e := range b {
			entries++
			count += e.Count
		}
	}
	return entries, count
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		c.AddLog("error", "broker down", map[string]interface{}{"market": "EURUSD"}, "x.go:1")
	}
	c.AddLog("error", "other", nil, "x.go:2")
	assert.Equal(t, 2, c.Pending())

	c.Close()
	entries, count := pub.total()
	assert.Equal(t, 2, entries)
	assert.Equal(t, 4, count)
	assert.Equal(t, "logs", pub.topic)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "")
	c.AddLog("error", "b", nil, "")

	require.Eventually(t, func() bool {
		entries, _ := pub.total()
		return entries == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}

func TestLoggerErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Publisher: pub})

	l.Error("persist failed", String("key", "risk_ladder"), Error(errors.New("disk full")))
	l.Warn("not collected")
	assert.Equal(t, 1, l.collector.Pending())

	l.RemoveCollector()
	entries, _ := pub.total()
	assert.Equal(t, 1, entries)
}
