// Package merger keeps the best N items of a stream with a bounded heap.
package merger

import "container/heap"

// TopN retains the limit best items pushed into it. better(a, b) reports
// whether a ranks strictly ahead of b; it must be a total order for results
// to be deterministic.
type TopN[T any] struct {
	limit int
	h     *boundedHeap[T]
}

func NewTopN[T any](limit int, better func(a, b T) bool) *TopN[T] {
	h := &boundedHeap[T]{better: better}
	heap.Init(h)
	return &TopN[T]{limit: limit, h: h}
}

// Push offers x. Once full, x replaces the current worst item only if it
// ranks ahead of it.
func (t *TopN[T]) Push(x T) {
	if t.limit <= 0 {
		return
	}
	if t.h.Len() < t.limit {
		heap.Push(t.h, x)
		return
	}
	if t.h.better(x, t.h.items[0]) {
		t.h.items[0] = x
		heap.Fix(t.h, 0)
	}
}

func (t *TopN[T]) Len() int {
	return t.h.Len()
}

// Sorted drains the heap and returns its items best first.
func (t *TopN[T]) Sorted() []T {
	result := make([]T, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(t.h).(T)
	}
	return result
}

// Merge combines several ranked lists into the limit best items.
func Merge[T any](lists [][]T, limit int, better func(a, b T) bool) []T {
	top := NewTopN(limit, better)
	for _, list := range lists {
		for _, x := range list {
			top.Push(x)
		}
	}
	return top.Sorted()
}

// boundedHeap is a min-heap under better: the worst item sits at the root.
type boundedHeap[T any] struct {
	items  []T
	better func(a, b T) bool
}

func (h boundedHeap[T]) Len() int { return len(h.items) }

func (h boundedHeap[T]) Less(i, j int) bool {
	return h.better(h.items[j], h.items[i])
}

func (h boundedHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *boundedHeap[T]) Push(x interface{}) {
	h.items = append(h.items, x.(T))
}

func (h *boundedHeap[T]) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
