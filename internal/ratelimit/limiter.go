// Package ratelimit implements the fixed-window admission control applied
// to export routes. Every partition key gets its own window chain; state is
// updated with compare-and-swap only, so concurrent admission checks never
// lose increments and no background goroutine is involved. Queued requests
// hold a FIFO ticket for a future window and sleep in their own request
// goroutine until it opens.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/merchantd/merchantd/internal/build"
)

// Sweep cadence and idle horizon, in windows.
const (
	sweepEveryWindows = 10
	evictAfterWindows = 4
)

var (
	rateLimitDecisionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "ratelimit_decision_count",
		Help:      "The total number of admission decisions, by outcome.",
	}, []string{"decision"})

	rateLimitQueueDelayMsHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace:                       build.ProjectName,
		Name:                            "ratelimit_queue_delay_ms",
		Help:                            "Time spent waiting for a queued admission ticket to mature.",
		Buckets:                         []float64{1, 3, 5, 10, 25, 50, 100, 1000, 5000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	})
)

// Decision is the outcome of an admission check.
type Decision int

const (
	// DecisionAdmitted lets the request proceed immediately.
	DecisionAdmitted Decision = iota

	// DecisionQueued reserves the request a slot in a future window. The
	// caller sleeps until that window opens via [Admission.Wait].
	DecisionQueued

	// DecisionRejected turns the request away, carrying the time until the
	// partition's window resets.
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionAdmitted:
		return "admitted"
	case DecisionQueued:
		return "queued"
	case DecisionRejected:
		return "rejected"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Admission is the result of [Limiter.TryAdmit].
type Admission struct {
	Decision Decision

	// OpenAt is when the reserved window opens, for queued admissions.
	OpenAt time.Time

	// RetryAfter is the time until the window resets, for rejections.
	RetryAfter time.Duration
}

// Wait blocks a queued admission until its reserved window opens or ctx is
// cancelled. Other decisions return immediately. Abandoning the wait does
// not corrupt the window; the reserved slot simply goes unused.
func (a Admission) Wait(ctx context.Context) error {
	if a.Decision != DecisionQueued {
		return nil
	}

	start := time.Now()
	timer := time.NewTimer(time.Until(a.OpenAt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		rateLimitQueueDelayMsHistogram.Observe(float64(time.Since(start).Milliseconds()))
		return nil
	}
}

// admissionWindow is one partition's window chain. Slot indices
// [k*limit, (k+1)*limit) belong to window k, which opens at
// start + k*window; the counter alone orders admissions. The pointer is
// swapped for a fresh chain once every issued slot's window has elapsed.
type admissionWindow struct {
	start time.Time
	count atomic.Int64
}

type partition struct {
	window atomic.Pointer[admissionWindow]
}

// Limiter is the per-partition fixed-window admission controller. Windows
// are unaligned across partitions: each chain starts at its partition's
// first request after a reset.
type Limiter struct {
	limit          int64
	window         time.Duration
	maxQueueLength int64

	partitions sync.Map // string -> *partition
	sweepAt    atomic.Int64
}

// NewLimiter admits up to limit requests per window per partition key.
// maxQueueLength zero disables queueing, turning every over-limit request
// into a rejection.
func NewLimiter(limit int64, window time.Duration, maxQueueLength int64) *Limiter {
	l := &Limiter{
		limit:          limit,
		window:         window,
		maxQueueLength: maxQueueLength,
	}
	l.sweepAt.Store(time.Now().Add(sweepEveryWindows * window).UnixNano())
	return l
}

// TryAdmit charges one admission against key's current window chain.
func (l *Limiter) TryAdmit(key string) Admission {
	now := time.Now()
	l.maybeSweep(now)

	v, ok := l.partitions.Load(key)
	if !ok {
		v, _ = l.partitions.LoadOrStore(key, &partition{})
	}
	p := v.(*partition)

	for {
		w := p.window.Load()
		if w == nil || l.chainDrained(w, now) {
			fresh := &admissionWindow{start: now}
			fresh.count.Store(1)
			if p.window.CompareAndSwap(w, fresh) {
				rateLimitDecisionCounter.WithLabelValues("admitted").Inc()
				return Admission{Decision: DecisionAdmitted}
			}
			continue
		}

		slot := w.count.Load()
		open := int64(now.Sub(w.start) / l.window)

		if slot/l.limit <= open {
			if w.count.CompareAndSwap(slot, slot+1) {
				rateLimitDecisionCounter.WithLabelValues("admitted").Inc()
				return Admission{Decision: DecisionAdmitted}
			}
			continue
		}

		pending := slot - (open+1)*l.limit
		if pending >= l.maxQueueLength {
			rateLimitDecisionCounter.WithLabelValues("rejected").Inc()
			return Admission{
				Decision:   DecisionRejected,
				RetryAfter: w.start.Add(time.Duration(open+1) * l.window).Sub(now),
			}
		}

		if w.count.CompareAndSwap(slot, slot+1) {
			rateLimitDecisionCounter.WithLabelValues("queued").Inc()
			return Admission{
				Decision: DecisionQueued,
				OpenAt:   w.start.Add(time.Duration(slot/l.limit) * l.window),
			}
		}
	}
}

// chainDrained reports whether every slot issued against w belongs to a
// window that has fully elapsed.
func (l *Limiter) chainDrained(w *admissionWindow, now time.Time) bool {
	return !now.Before(w.start.Add(time.Duration(l.chainWindows(w)) * l.window))
}

func (l *Limiter) chainWindows(w *admissionWindow) int64 {
	n := (w.count.Load() + l.limit - 1) / l.limit
	if n < 1 {
		n = 1
	}
	return n
}

// maybeSweep opportunistically drops partitions whose chains ended several
// windows ago, bounding memory across many distinct keys.
func (l *Limiter) maybeSweep(now time.Time) {
	at := l.sweepAt.Load()
	if now.UnixNano() < at {
		return
	}
	if !l.sweepAt.CompareAndSwap(at, now.Add(sweepEveryWindows*l.window).UnixNano()) {
		return
	}

	idleHorizon := evictAfterWindows * l.window
	l.partitions.Range(func(key, value any) bool {
		p := value.(*partition)
		w := p.window.Load()
		if w == nil {
			l.partitions.Delete(key)
			return true
		}
		chainEnd := w.start.Add(time.Duration(l.chainWindows(w)) * l.window)
		if now.Sub(chainEnd) > idleHorizon {
			l.partitions.Delete(key)
		}
		return true
	})
}
