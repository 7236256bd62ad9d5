package prioritized

// Batcher converts between single items and the batch form handed to learners.
// Join builds a batch from items in order and Split is its reciprocal. Both own
// any copying the item type needs; the buffer never looks inside T or B.
type Batcher[T, B any] interface {
	Join(items []T) B
	Split(batch B) []T
}

// SliceBatcher is the Batcher whose batch form is a plain slice.
type SliceBatcher[T any] struct{}

// Join returns a copy of items.
func (SliceBatcher[T]) Join(items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// Split returns a copy of batch.
func (SliceBatcher[T]) Split(batch []T) []T {
	out := make([]T, len(batch))
	copy(out, batch)
	return out
}
