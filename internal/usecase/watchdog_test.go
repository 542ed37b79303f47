package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "AnimaRex/internal/domain/repository"
	"AnimaRex/internal/service/broker"
	"AnimaRex/internal/service/session"
)

func connectedPaper(t *testing.T) *broker.Paper {
	t.Helper()
	p := broker.NewPaper(broker.PaperConfig{Balance: 50, Payout: 0.8, WinChance: 0.5})
	require.NoError(t, p.Connect(context.Background()))
	return p
}

type reconnector struct {
	next  domrepo.Broker
	err   error
	calls atomic.Int32
}

func (r *reconnector) fn(context.Context) (domrepo.Broker, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return r.next, nil
}

func TestWatchdog_Check(t *testing.T) {
	tests := []struct {
		name       string
		initial    func(*broker.Paper) domrepo.Broker
		failNext   int
		reconnErr  error
		healthy    bool
		reconnects int32
		replaced   bool
	}{
		{name: "healthy session is left alone", healthy: true},
		{name: "failed probe swaps the session", failNext: 1, healthy: true, reconnects: 1, replaced: true},
		{name: "missing session forces a connect", initial: func(*broker.Paper) domrepo.Broker { return nil }, healthy: true, reconnects: 1, replaced: true},
		{name: "reconnect failure keeps the old session", failNext: 1, reconnErr: errors.New("login refused"), healthy: false, reconnects: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := connectedPaper(t)
			old.FailNext(tt.failNext)
			var initial domrepo.Broker = old
			if tt.initial != nil {
				initial = tt.initial(old)
			}
			cell := session.NewCell(initial, nil)
			fresh := connectedPaper(t)
			r := &reconnector{next: fresh, err: tt.reconnErr}
			m := newCountingMetrics()

			w := NewWatchdog(cell, r.fn, time.Second, m, nil)
			assert.Equal(t, tt.healthy, w.Check(context.Background()))
			assert.Equal(t, tt.reconnects, r.calls.Load())

			cur, _ := cell.Get()
			if tt.replaced {
				assert.Same(t, fresh, cur)
			} else if initial != nil {
				assert.Same(t, old, cur)
			}
			if tt.reconnErr != nil {
				assert.Equal(t, 1, m.errorCount("reconnect"))
			}
		})
	}
}

func TestWatchdog_ReplacedSessionIsClosed(t *testing.T) {
	old := connectedPaper(t)
	old.FailNext(1)
	cell := session.NewCell(old, nil)
	r := &reconnector{next: connectedPaper(t)}

	require.True(t, NewWatchdog(cell, r.fn, time.Second, nil, nil).Check(context.Background()))
	assert.Error(t, old.Ping(context.Background()))
}

func TestKeepAlive_UsesPing(t *testing.T) {
	old := connectedPaper(t)
	cell := session.NewCell(old, nil)
	r := &reconnector{next: connectedPaper(t)}
	m := newCountingMetrics()
	k := NewKeepAlive(cell, r.fn, time.Second, m, nil)

	require.True(t, k.Check(context.Background()))
	assert.Zero(t, r.calls.Load())

	old.FailNext(1)
	require.True(t, k.Check(context.Background()))
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 1, m.errorCount("keepalive"))
}

func TestWatchdog_RunStopsOnCancel(t *testing.T) {
	cell := session.NewCell(connectedPaper(t), nil)
	m := newCountingMetrics()
	w := NewWatchdog(cell, (&reconnector{}).fn, 2*time.Millisecond, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.heartbeats["watchdog"] >= 3
	}, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
}
