package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnimaRex/internal/domain/models"
	"AnimaRex/internal/middleware"
	pkgcache "AnimaRex/pkg/cache"
	pkgkafka "AnimaRex/pkg/kafka"
)

func TestKafkaSignalsHandler_Handle(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		strategy  string
		direction models.Direction
		ts        time.Time
	}{
		{
			name:      "seconds timestamp",
			payload:   `{"market":"EURUSD","direction":"call","strategy":"feed","ts":1700000000}`,
			strategy:  "feed",
			direction: models.DirectionCall,
			ts:        time.Unix(1700000000, 0).UTC(),
		},
		{
			name:      "millisecond timestamp and default strategy",
			payload:   `{"market":"EURUSD","direction":"PUT","ts":1700000000123}`,
			strategy:  "external",
			direction: models.DirectionPut,
			ts:        time.UnixMilli(1700000000123).UTC(),
		},
		{name: "malformed json", payload: `{"market":`, wantErr: true},
		{name: "unknown direction", payload: `{"market":"EURUSD","direction":"UP"}`, wantErr: true},
		{name: "missing market", payload: `{"direction":"CALL"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := middleware.NewSignalBus()
			m := newCountingMetrics()
			h := NewKafkaSignalsHandler("anima.signals", bus, m, nil)

			err := h.Handle(context.Background(), []byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, pkgkafka.ErrNonRetryable)
				assert.Zero(t, bus.Len())
				return
			}
			require.NoError(t, err)
			sig, ok := bus.Receive(context.Background(), time.Millisecond)
			require.True(t, ok)
			assert.Equal(t, "EURUSD", sig.Market)
			assert.Equal(t, tt.strategy, sig.Strategy)
			assert.Equal(t, tt.direction, sig.Direction)
			assert.True(t, tt.ts.Equal(sig.Timestamp))
			assert.Equal(t, 1, m.signalCount())
		})
	}
}

func TestKafkaSignalsHandler_FullBusIsNotRetried(t *testing.T) {
	bus := middleware.NewSignalBus(middleware.WithCapacity(1), middleware.WithPublishTimeout(time.Millisecond))
	h := NewKafkaSignalsHandler("anima.signals", bus, nil, nil)
	assert.Equal(t, "anima.signals", h.Topic())

	msg := []byte(`{"market":"EURUSD","direction":"CALL"}`)
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 1, bus.Len())
}

func TestKafkaSignalsHandler_Dedup(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		second  string
		wantLen int
	}{
		{
			name:    "same id",
			first:   `{"id":"a1","market":"EURUSD","direction":"CALL"}`,
			second:  `{"id":"a1","market":"EURUSD","direction":"CALL"}`,
			wantLen: 1,
		},
		{
			name:    "different ids",
			first:   `{"id":"a1","market":"EURUSD","direction":"CALL"}`,
			second:  `{"id":"a2","market":"EURUSD","direction":"CALL"}`,
			wantLen: 2,
		},
		{
			name:    "same timestamp without id",
			first:   `{"market":"EURUSD","direction":"PUT","ts":1700000000}`,
			second:  `{"market":"EURUSD","direction":"PUT","ts":1700000000}`,
			wantLen: 1,
		},
		{
			name:    "no id and no timestamp",
			first:   `{"market":"EURUSD","direction":"PUT"}`,
			second:  `{"market":"EURUSD","direction":"PUT"}`,
			wantLen: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := middleware.NewSignalBus()
			h := NewKafkaSignalsHandler("anima.signals", bus, nil, nil)
			h.SetDedup(pkgcache.NewMemoryCache(), time.Minute, true)
			defer h.Close()

			require.NoError(t, h.Handle(context.Background(), []byte(tt.first)))
			require.NoError(t, h.Handle(context.Background(), []byte(tt.second)))
			assert.Equal(t, tt.wantLen, bus.Len())
		})
	}
}
