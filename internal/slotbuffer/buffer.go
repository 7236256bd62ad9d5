// Package slotbuffer implements a fixed-capacity circular buffer of weighted slots
// with separate reserve and publish boundaries.
//
// Appenders reserve a contiguous range of slots under the buffer lock, fill it
// without the lock, and then publish it in reservation order. Readers only ever
// see the published prefix.
//
// BlockPop, Update, ElementAndMark and Weight are not synchronized against each
// other. Callers must serialize them with a lock of their own; they are safe to
// run concurrently with BlockAppend.
package slotbuffer

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("capacity must be positive")
	// ErrLengthMismatch is returned when items/ids and weights differ in length.
	ErrLengthMismatch = errors.New("mismatched lengths")
	// ErrBlockTooLarge is returned when a block can never fit in the buffer.
	ErrBlockTooLarge = errors.New("block larger than capacity")
	// ErrInvalidID is returned when an update references a slot that does not exist.
	ErrInvalidID = errors.New("slot id out of range")
)

// Buffer is a bounded circular buffer of (payload, weight, evicted) slots.
type Buffer[T any] struct {
	capacity int

	mu       sync.Mutex
	sizeCond *sync.Cond // signalled when slots are freed
	tailCond *sync.Cond // signalled when safeTail advances

	head int
	tail int
	size int

	safeTail int
	safeSize int
	sum      float64

	evicted  []bool
	elements []T
	weights  []float32
}

// New creates a buffer holding at most capacity slots.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("slotbuffer: %w: %d", ErrInvalidCapacity, capacity)
	}

	b := &Buffer[T]{
		capacity: capacity,
		evicted:  make([]bool, capacity),
		elements: make([]T, capacity),
		weights:  make([]float32, capacity),
	}
	for i := range b.evicted {
		b.evicted[i] = true
	}
	b.sizeCond = sync.NewCond(&b.mu)
	b.tailCond = sync.NewCond(&b.mu)
	return b, nil
}

// Capacity returns the number of physical slots.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// SafeSize returns the published element count and the weight sum over it.
func (b *Buffer[T]) SafeSize() (int, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.safeSize, b.sum
}

// Size returns the reserved element count, including unpublished slots.
func (b *Buffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// BlockAppend appends items with their weights, blocking while the buffer is
// too full to take the whole block. The block becomes visible to readers only
// after every earlier reservation has been published.
func (b *Buffer[T]) BlockAppend(items []T, weights []float32) error {
	n := len(items)
	if n != len(weights) {
		return fmt.Errorf("slotbuffer: append: %w: %d items vs %d weights", ErrLengthMismatch, n, len(weights))
	}
	if n > b.capacity {
		return fmt.Errorf("slotbuffer: append: %w: %d > %d", ErrBlockTooLarge, n, b.capacity)
	}
	if n == 0 {
		return nil
	}

	b.mu.Lock()
	for b.size+n > b.capacity {
		b.sizeCond.Wait()
	}

	start := b.tail
	end := (b.tail + n) % b.capacity
	b.tail = end
	b.size += n
	b.checkSize(b.head, b.tail, b.size)
	b.mu.Unlock()

	// The range [start, end) belongs to this call until it is published.
	var sum float64
	for i := 0; i < n; i++ {
		j := (start + i) % b.capacity
		b.elements[j] = items[i]
		b.weights[j] = weights[i]
		sum += float64(weights[i])
	}

	b.mu.Lock()
	for b.safeTail != start {
		b.tailCond.Wait()
	}
	b.safeTail = end
	b.safeSize += n
	b.sum += sum
	b.checkSize(b.head, b.safeTail, b.safeSize)
	b.mu.Unlock()

	b.tailCond.Broadcast()
	return nil
}

// BlockPop evicts the n oldest published elements.
func (b *Buffer[T]) BlockPop(n int) {
	if n == 0 {
		return
	}
	if published, _ := b.SafeSize(); n < 0 || n > published {
		panic(fmt.Sprintf("slotbuffer: pop of %d with %d published", n, published))
	}

	var removed float64
	head := b.head
	for i := 0; i < n; i++ {
		removed += float64(b.weights[head])
		b.evicted[head] = true
		head = (head + 1) % b.capacity
	}

	b.mu.Lock()
	b.head = head
	b.safeSize -= n
	b.size -= n
	b.settle(-removed, removed)
	b.checkSize(b.head, b.safeTail, b.safeSize)
	b.mu.Unlock()

	b.sizeCond.Broadcast()
}

// Update overwrites the weights of the given slot ids. Ids whose slots were
// evicted since they were read are skipped.
func (b *Buffer[T]) Update(ids []int, weights []float32) error {
	if len(ids) != len(weights) {
		return fmt.Errorf("slotbuffer: update: %w: %d ids vs %d weights", ErrLengthMismatch, len(ids), len(weights))
	}
	for _, id := range ids {
		if id < 0 || id >= b.capacity {
			return fmt.Errorf("slotbuffer: update: %w: %d", ErrInvalidID, id)
		}
	}

	var diff, removed float64
	for i, id := range ids {
		if b.evicted[id] {
			continue
		}
		removed += float64(b.weights[id])
		diff += float64(weights[i]) - float64(b.weights[id])
		b.weights[id] = weights[i]
	}

	b.mu.Lock()
	b.settle(diff, removed)
	b.mu.Unlock()
	return nil
}

// settle applies diff to the running weight sum. When the mass taken out
// exceeds what is left, the delta may have cancelled away the remainder's
// precision, so the sum is recounted over the published prefix in scan
// order. Caller holds mu.
func (b *Buffer[T]) settle(diff, removed float64) {
	b.sum += diff
	if b.safeSize == 0 {
		b.sum = 0
		return
	}
	if removed <= b.sum {
		return
	}
	var sum float64
	for i := 0; i < b.safeSize; i++ {
		sum += float64(b.weights[(b.head+i)%b.capacity])
	}
	b.sum = sum
}

// ElementAndMark returns the element at offset from head and marks its slot live.
func (b *Buffer[T]) ElementAndMark(offset int) T {
	id := (b.head + offset) % b.capacity
	b.evicted[id] = false
	return b.elements[id]
}

// Weight returns the weight at offset from head together with its slot id.
func (b *Buffer[T]) Weight(offset int) (float32, int) {
	id := (b.head + offset) % b.capacity
	return b.weights[id], id
}

func (b *Buffer[T]) checkSize(head, tail, size int) {
	if size == 0 {
		if tail != head {
			panic(fmt.Sprintf("slotbuffer: empty buffer with head %d tail %d", head, tail))
		}
		return
	}
	span := tail - head
	if span <= 0 {
		span += b.capacity
	}
	if span != size {
		panic(fmt.Sprintf("slotbuffer: tail-head %d vs size %d", span, size))
	}
}
