package storage

import (
	"context"
	"errors"
)

// ErrIteratorDone is returned by Iterator.Next when iteration is exhausted.
var ErrIteratorDone = errors.New("iterator done")

// Iterator is a lazy, pull-based cursor over an ordered result set. It is
// closed by explicitly calling Stop() or by calling Next() until it returns
// ErrIteratorDone. A cancelled context surfaces as the context's error, never
// as ErrIteratorDone.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, error)
	Stop()
}

type staticIterator[T any] struct {
	items []T
}

// NewStaticIterator returns an Iterator over the provided slice.
func NewStaticIterator[T any](items []T) Iterator[T] {
	return &staticIterator[T]{items: items}
}

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var val T
	if err := ctx.Err(); err != nil {
		return val, err
	}

	if len(s.items) == 0 {
		return val, ErrIteratorDone
	}

	next, rest := s.items[0], s.items[1:]
	s.items = rest

	return next, nil
}

func (s *staticIterator[T]) Stop() {}

// FilterFunc reports whether an item should be yielded to the consumer.
type FilterFunc[T any] func(T) bool

type filteredIterator[T any] struct {
	iter Iterator[T]
	keep FilterFunc[T]
}

// NewFilteredIterator returns an iterator yielding only the items of iter for
// which keep returns true.
func NewFilteredIterator[T any](iter Iterator[T], keep FilterFunc[T]) Iterator[T] {
	return &filteredIterator[T]{iter: iter, keep: keep}
}

func (f *filteredIterator[T]) Next(ctx context.Context) (T, error) {
	for {
		val, err := f.iter.Next(ctx)
		if err != nil {
			return val, err
		}

		if f.keep(val) {
			return val, nil
		}
	}
}

func (f *filteredIterator[T]) Stop() {
	f.iter.Stop()
}

type takeIterator[T any] struct {
	iter      Iterator[T]
	remaining int
}

// NewTakeIterator truncates iter after n items. This is the explicit
// truncation callers reach for when they want "first n" semantics instead of
// the export safeguard's fail-on-overflow behavior.
func NewTakeIterator[T any](iter Iterator[T], n int) Iterator[T] {
	return &takeIterator[T]{iter: iter, remaining: n}
}

func (t *takeIterator[T]) Next(ctx context.Context) (T, error) {
	var val T
	if t.remaining <= 0 {
		return val, ErrIteratorDone
	}

	val, err := t.iter.Next(ctx)
	if err != nil {
		return val, err
	}

	t.remaining--

	return val, nil
}

func (t *takeIterator[T]) Stop() {
	t.iter.Stop()
}
