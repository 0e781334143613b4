package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLimiterAdmitsUpToLimit(t *testing.T) {
	l := NewLimiter(5, time.Minute, 0)

	for i := 0; i < 5; i++ {
		a := l.TryAdmit("tenant-1")
		require.Equal(t, DecisionAdmitted, a.Decision)
	}

	a := l.TryAdmit("tenant-1")
	require.Equal(t, DecisionRejected, a.Decision)
	require.Greater(t, a.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, a.RetryAfter, time.Minute)
}

func TestLimiterWindowReset(t *testing.T) {
	l := NewLimiter(2, 100*time.Millisecond, 0)

	require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)
	require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)
	require.Equal(t, DecisionRejected, l.TryAdmit("k").Decision)

	time.Sleep(250 * time.Millisecond)

	require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)
}

func TestLimiterPartitionsAreIndependent(t *testing.T) {
	l := NewLimiter(1, time.Minute, 0)

	require.Equal(t, DecisionAdmitted, l.TryAdmit("alpha").Decision)
	require.Equal(t, DecisionAdmitted, l.TryAdmit("beta").Decision)
	require.Equal(t, DecisionRejected, l.TryAdmit("alpha").Decision)
	require.Equal(t, DecisionRejected, l.TryAdmit("beta").Decision)
}

func TestLimiterQueueing(t *testing.T) {
	t.Run("queue_fills_in_fifo_order", func(t *testing.T) {
		l := NewLimiter(1, time.Minute, 3)

		require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)

		first := l.TryAdmit("k")
		second := l.TryAdmit("k")
		third := l.TryAdmit("k")
		require.Equal(t, DecisionQueued, first.Decision)
		require.Equal(t, DecisionQueued, second.Decision)
		require.Equal(t, DecisionQueued, third.Decision)

		// Each queued ticket lands one window later than the one before it.
		require.Equal(t, time.Minute, second.OpenAt.Sub(first.OpenAt))
		require.Equal(t, time.Minute, third.OpenAt.Sub(second.OpenAt))

		overflow := l.TryAdmit("k")
		require.Equal(t, DecisionRejected, overflow.Decision)
		require.Greater(t, overflow.RetryAfter, time.Duration(0))
		require.LessOrEqual(t, overflow.RetryAfter, time.Minute)
	})

	t.Run("queued_ticket_matures", func(t *testing.T) {
		l := NewLimiter(1, 150*time.Millisecond, 1)

		require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)
		queued := l.TryAdmit("k")
		require.Equal(t, DecisionQueued, queued.Decision)

		err := queued.Wait(context.Background())
		require.NoError(t, err)
		require.False(t, time.Now().Before(queued.OpenAt))
	})

	t.Run("cancelled_wait_abandons_slot", func(t *testing.T) {
		l := NewLimiter(1, 150*time.Millisecond, 1)

		require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)
		queued := l.TryAdmit("k")
		require.Equal(t, DecisionQueued, queued.Decision)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, queued.Wait(ctx), context.Canceled)

		// The abandoned slot stays reserved, so the queue is still full.
		require.Equal(t, DecisionRejected, l.TryAdmit("k").Decision)

		// Once the chain drains, a fresh window starts as usual.
		time.Sleep(500 * time.Millisecond)
		require.Equal(t, DecisionAdmitted, l.TryAdmit("k").Decision)
	})

	t.Run("non_queued_admissions_do_not_wait", func(t *testing.T) {
		l := NewLimiter(1, time.Minute, 0)

		admitted := l.TryAdmit("k")
		require.Equal(t, DecisionAdmitted, admitted.Decision)
		require.NoError(t, admitted.Wait(context.Background()))

		rejected := l.TryAdmit("k")
		require.Equal(t, DecisionRejected, rejected.Decision)
		require.NoError(t, rejected.Wait(context.Background()))
	})
}

func TestLimiterConcurrentAdmissions(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := NewLimiter(50, time.Minute, 0)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
		rejected atomic.Int64
	)

	start := make(chan struct{})
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			switch l.TryAdmit("k").Decision {
			case DecisionAdmitted:
				admitted.Add(1)
			case DecisionRejected:
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 50, admitted.Load())
	require.EqualValues(t, 50, rejected.Load())
}

func TestLimiterIdleSweep(t *testing.T) {
	l := NewLimiter(1, 10*time.Millisecond, 0)

	require.Equal(t, DecisionAdmitted, l.TryAdmit("stale").Decision)

	time.Sleep(300 * time.Millisecond)

	require.Equal(t, DecisionAdmitted, l.TryAdmit("fresh").Decision)

	_, ok := l.partitions.Load("stale")
	require.False(t, ok)
	_, ok = l.partitions.Load("fresh")
	require.True(t, ok)
}

func TestDecisionString(t *testing.T) {
	require.Equal(t, "admitted", DecisionAdmitted.String())
	require.Equal(t, "queued", DecisionQueued.String())
	require.Equal(t, "rejected", DecisionRejected.String())
	require.Equal(t, "decision(99)", Decision(99).String())
}
