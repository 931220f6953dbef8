package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTicker struct {
	ticks   atomic.Int32
	waited  atomic.Bool
	ctxDone atomic.Bool
}

func (c *countingTicker) Tick(ctx context.Context) {
	c.ticks.Add(1)
	go func() {
		<-ctx.Done()
		c.ctxDone.Store(true)
	}()
}

func (c *countingTicker) Wait() { c.waited.Store(true) }

func TestScheduler(t *testing.T) {
	t.Run("rejects bad schedule", func(t *testing.T) {
		s := NewScheduler(&countingTicker{}, "every now and then", slog.Default())
		require.Error(t, s.Start(context.Background()))
	})

	t.Run("ticks until stopped", func(t *testing.T) {
		worker := &countingTicker{}
		s := NewScheduler(worker, "@every 1s", slog.Default())
		require.NoError(t, s.Start(context.Background()))

		require.Eventually(t, func() bool { return worker.ticks.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
		s.Stop()

		assert.True(t, worker.waited.Load())
		assert.Eventually(t, worker.ctxDone.Load, time.Second, 10*time.Millisecond)
	})
}
