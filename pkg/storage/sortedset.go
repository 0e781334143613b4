package storage

import "github.com/emirpasic/gods/trees/redblacktree"

// SortedSet stores a set (no duplicates allowed) of string ids in memory in a
// way that also provides fast sorted access. The bulk mutation pipeline uses
// it to accumulate unresolved ids so they come back in a stable order.
type SortedSet interface {
	Size() int
	Add(key string)
	Exists(key string) bool
	Values() []string
}

type RedBlackTreeSet struct {
	inner *redblacktree.Tree
}

var _ SortedSet = (*RedBlackTreeSet)(nil)

func NewSortedSet() *RedBlackTreeSet {
	return &RedBlackTreeSet{
		inner: redblacktree.NewWithStringComparator(),
	}
}

func (r *RedBlackTreeSet) Add(key string) {
	r.inner.Put(key, nil)
}

func (r *RedBlackTreeSet) Exists(key string) bool {
	_, ok := r.inner.Get(key)
	return ok
}

func (r *RedBlackTreeSet) Size() int {
	return r.inner.Size()
}

// Values returns the members in ascending order.
func (r *RedBlackTreeSet) Values() []string {
	values := make([]string, 0, r.inner.Size())
	for _, k := range r.inner.Keys() {
		values = append(values, k.(string))
	}
	return values
}
