package export

import (
	"context"
	"errors"

	"github.com/merchantd/merchantd/pkg/storage"
)

// ErrRecordLimitExceeded is returned when an export would stream more
// records than its safeguard allows. It signals the caller to narrow the
// request, not to retry it unchanged.
var ErrRecordLimitExceeded = errors.New("export record limit exceeded")

type guardedIterator[T any] struct {
	iter       storage.Iterator[T]
	maxRecords int
	seen       int
}

// NewGuardedIterator wraps iter so that pulling more than maxRecords items
// fails with ErrRecordLimitExceeded, strictly before the overflowing item is
// exposed. Callers that want truncation instead of failure apply
// storage.NewTakeIterator upstream of the guard.
func NewGuardedIterator[T any](iter storage.Iterator[T], maxRecords int) storage.Iterator[T] {
	return &guardedIterator[T]{iter: iter, maxRecords: maxRecords}
}

func (g *guardedIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	val, err := g.iter.Next(ctx)
	if err != nil {
		return zero, err
	}

	g.seen++
	if g.seen > g.maxRecords {
		return zero, ErrRecordLimitExceeded
	}

	return val, nil
}

func (g *guardedIterator[T]) Stop() {
	g.iter.Stop()
}
