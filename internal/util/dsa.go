package util

import "github.com/negrel/assert"

func mod(a int, b int) int {
	return ((a % b) + b) % b
}

// fixed-size ring-buffer queue
type Queue[T any] struct {
	data []T
	head int // next slot to write to
	cnt  int
}

func CreateQueue[T any](size int) Queue[T] {
	assert.GreaterOrEqual(size, 1, "queue needs at least one slot")
	return Queue[T]{
		head: 0,
		cnt:  0,
		data: make([]T, size),
	}
}

func (q *Queue[T]) Cnt() int {
	return q.cnt
}

func (q *Queue[T]) Cap() int {
	return len(q.data)
}

// will panic if out of space.
func (q *Queue[T]) Push(val T) {
	if q.cnt == len(q.data) {
		panic("queue overflow")
	}
	q.data[q.head] = val
	q.head = mod((q.head + 1), len(q.data))
	q.cnt++
}

func (q *Queue[T]) Pop() T {
	if q.cnt == 0 {
		panic("queue underflow")
	}
	i := mod((q.head - q.cnt), len(q.data))
	val := q.data[i]
	// don't keep popped values reachable
	var zero T
	q.data[i] = zero
	q.cnt--
	return val
}

// Clear drops everything still queued.
func (q *Queue[T]) Clear() {
	clear(q.data)
	q.head, q.cnt = 0, 0
}
