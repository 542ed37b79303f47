package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RunsAndSurvivesPanics(t *testing.T) {
	r := New(nil, context.Background())

	var runs atomic.Int32
	_, err := r.Add("count", "* * * * * *", func(ctx context.Context) { runs.Add(1) })
	require.NoError(t, err)
	_, err = r.Add("boom", "* * * * * *", func(ctx context.Context) { panic("boom") })
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	r.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
	r.Stop()
}

func TestRunner_RejectsBadSpec(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Add("bad", "every minute", func(context.Context) {})
	assert.Error(t, err)
	assert.Zero(t, r.Len())
}
