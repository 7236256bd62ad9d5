// Package prioritized implements a concurrent prioritized experience replay
// buffer for actor/learner training loops.
//
// Actors append items with priorities; a learner samples batches in proportion
// to priority^alpha, receives importance-sampling weights alongside, and then
// either revises the priorities of the batch it was handed (UpdatePriority) or
// declines to (KeepPriority) before sampling again.
//
// Two locks are involved. The slot buffer guards its own head/tail bookkeeping,
// so appenders never wait on a sampler. The buffer-level sampler lock
// serializes each draw with priority updates, capacity compaction and draining.
//
// Design reference: Horgan et al., Distributed Prioritized Experience Replay,
// https://openreview.net/pdf?id=H1Dy---0Z
package prioritized

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"gorgonia.org/tensor"

	"github.com/cartridge/replay/internal/slotbuffer"
	"github.com/cartridge/replay/internal/weights"
)

var (
	// ErrPendingSample is returned by Sample while the previous batch still
	// awaits UpdatePriority or KeepPriority.
	ErrPendingSample = errors.New("previous sample's priorities have not been updated")
	// ErrNoPendingSample is returned by UpdatePriority when nothing was sampled.
	ErrNoPendingSample = errors.New("no sampled batch awaiting a priority update")
	// ErrEmpty is returned when there is nothing to sample from.
	ErrEmpty = errors.New("replay buffer has no sampling weight")
	// ErrScanExhausted means the weight scan ran past the published items; the
	// weight sum no longer matches the stored weights.
	ErrScanExhausted = errors.New("weighted scan exhausted the buffer")
	// ErrClosed is returned by Sample after Close.
	ErrClosed = errors.New("replay buffer closed")
	// ErrInvalidConfig is returned by New for out-of-range parameters.
	ErrInvalidConfig = errors.New("invalid replay buffer configuration")
	// ErrInvalidBatchSize is returned for non-positive batch sizes.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrLengthMismatch is returned when items and priorities differ in length.
	ErrLengthMismatch = slotbuffer.ErrLengthMismatch
	// ErrBlockTooLarge is returned when a single add exceeds the slot capacity.
	ErrBlockTooLarge = slotbuffer.ErrBlockTooLarge
)

// Buffer is a prioritized replay buffer of items T handed out in batches B.
type Buffer[T, B any] struct {
	alpha    float32
	beta     float32
	prefetch int
	capacity int

	batcher Batcher[T, B]
	storage *slotbuffer.Buffer[T]

	numAdded atomic.Int64

	// sampleMu orders draws against updates, compaction, trimming and draining.
	sampleMu    sync.Mutex
	rng         *rand.Rand
	lastQueried int64

	// mu guards the consumer-side state below.
	mu         sync.Mutex
	sampledIDs []int
	futures    *queue.Queue
	closed     bool
	inflight   sync.WaitGroup

	logger  zerolog.Logger
	metrics *bufferMetrics
	onEvict func(n int)
}

// New creates a buffer that keeps about capacity items. The slot storage is a
// quarter larger so producers can run ahead of compaction, which happens on
// each draw and always drops the oldest items first.
func New[T, B any](capacity int, batcher Batcher[T, B], opts ...Option) (*Buffer[T, B], error) {
	o := applyOptions(opts...)

	switch {
	case capacity <= 0:
		return nil, fmt.Errorf("prioritized: %w: capacity %d", ErrInvalidConfig, capacity)
	case o.alpha < 0:
		return nil, fmt.Errorf("prioritized: %w: alpha %v", ErrInvalidConfig, o.alpha)
	case o.beta < 0:
		return nil, fmt.Errorf("prioritized: %w: beta %v", ErrInvalidConfig, o.beta)
	case o.prefetch < 0:
		return nil, fmt.Errorf("prioritized: %w: prefetch %d", ErrInvalidConfig, o.prefetch)
	case batcher == nil:
		return nil, fmt.Errorf("prioritized: %w: nil batcher", ErrInvalidConfig)
	}

	storage, err := slotbuffer.New[T](slotCapacity(capacity))
	if err != nil {
		return nil, fmt.Errorf("prioritized: %w", err)
	}

	r := &Buffer[T, B]{
		alpha:    o.alpha,
		beta:     o.beta,
		prefetch: o.prefetch,
		capacity: capacity,
		batcher:  batcher,
		storage:  storage,
		rng:      rand.New(rand.NewSource(o.seed)),
		futures:  queue.New(),
		logger:   o.logger.With().Str("component", "prioritized_replay").Logger(),
		onEvict:  o.onEvict,
	}

	if o.registerer != nil {
		r.metrics, err = newBufferMetrics(o.registerer, o.metricsName)
		if err != nil {
			return nil, fmt.Errorf("prioritized: register metrics: %w", err)
		}
	}

	r.logger.Debug().
		Int("capacity", capacity).
		Int("slots", storage.Capacity()).
		Float32("alpha", o.alpha).
		Float32("beta", o.beta).
		Int("prefetch", o.prefetch).
		Msg("Replay buffer created")

	return r, nil
}

func slotCapacity(capacity int) int {
	slots := capacity + capacity/4
	if slots <= capacity {
		slots = capacity + 1
	}
	return slots
}

// Add appends items with their priorities, blocking while the slot storage is full.
func (r *Buffer[T, B]) Add(items []T, priorities []float32) error {
	if len(items) != len(priorities) {
		return fmt.Errorf("prioritized: add: %w: %d items vs %d priorities", ErrLengthMismatch, len(items), len(priorities))
	}
	w, err := weights.FromPriorities(priorities, r.alpha)
	if err != nil {
		return fmt.Errorf("prioritized: add: %w", err)
	}
	if err := r.storage.BlockAppend(items, w); err != nil {
		return fmt.Errorf("prioritized: add: %w", err)
	}
	r.numAdded.Add(int64(len(items)))

	r.metrics.recordAdd(len(items))
	r.metrics.observe(r.storage.SafeSize())
	return nil
}

// AddOne appends a single item.
func (r *Buffer[T, B]) AddOne(item T, priority float32) error {
	return r.Add([]T{item}, []float32{priority})
}

// AddBatch splits batch into items and appends them with their priorities.
func (r *Buffer[T, B]) AddBatch(batch B, priorities []float32) error {
	return r.Add(r.batcher.Split(batch), priorities)
}

// AddBatchAsync runs AddBatch on its own goroutine. The returned channel
// receives the result once and is then closed.
func (r *Buffer[T, B]) AddBatchAsync(batch B, priorities []float32) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- r.AddBatch(batch, priorities)
	}()
	return done
}

// UpdatePriority sets new priorities for the batch returned by the last Sample,
// in the same order. Items evicted since then are skipped.
func (r *Buffer[T, B]) UpdatePriority(priorities []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sampledIDs) == 0 {
		if len(priorities) == 0 {
			return nil
		}
		return fmt.Errorf("prioritized: update: %w", ErrNoPendingSample)
	}
	if len(priorities) != len(r.sampledIDs) {
		r.logger.Error().
			Int("priorities", len(priorities)).
			Int("sampled", len(r.sampledIDs)).
			Msg("Priority update does not match sampled batch")
		return fmt.Errorf("prioritized: update: %w: %d priorities for %d sampled",
			ErrLengthMismatch, len(priorities), len(r.sampledIDs))
	}

	w, err := weights.FromPriorities(priorities, r.alpha)
	if err != nil {
		return fmt.Errorf("prioritized: update: %w", err)
	}

	r.sampleMu.Lock()
	err = r.storage.Update(r.sampledIDs, w)
	r.sampleMu.Unlock()
	if err != nil {
		return fmt.Errorf("prioritized: update: %w", err)
	}

	r.sampledIDs = nil
	r.metrics.recordUpdate()
	r.metrics.observe(r.storage.SafeSize())
	return nil
}

// KeepPriority discards the pending batch without touching its priorities.
func (r *Buffer[T, B]) KeepPriority() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampledIDs = nil
}

// Pending returns a copy of the slot ids awaiting a priority update.
func (r *Buffer[T, B]) Pending() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.sampledIDs))
	copy(out, r.sampledIDs)
	return out
}

// GetNewContent removes and returns, oldest first, every item added since the
// previous call, each weighted 1. It is a whole-stream alternative to weighted
// sampling and is not meant to be mixed with it on one buffer.
func (r *Buffer[T, B]) GetNewContent() (int, B, *tensor.Dense, error) {
	r.sampleMu.Lock()
	published, _ := r.storage.SafeSize()
	n := int(r.numAdded.Load() - r.lastQueried)
	if n > published {
		n = published
	}
	if n <= 0 {
		r.sampleMu.Unlock()
		return 0, r.batcher.Join(nil), nil, nil
	}

	items := make([]T, n)
	for i := range items {
		items[i] = r.storage.ElementAndMark(i)
	}
	r.storage.BlockPop(n)
	r.lastQueried += int64(n)
	r.sampleMu.Unlock()

	r.metrics.recordDrain(n)
	r.metrics.observe(r.storage.SafeSize())
	return n, r.batcher.Join(items), weights.Uniform(n), nil
}

// Trim evicts the oldest published items until at most keep remain and
// reports how many were evicted.
func (r *Buffer[T, B]) Trim(keep int) int {
	if keep < 0 {
		keep = 0
	}

	r.sampleMu.Lock()
	published, _ := r.storage.SafeSize()
	n := published - keep
	if n > 0 {
		r.storage.BlockPop(n)
	}
	r.sampleMu.Unlock()

	if n <= 0 {
		return 0
	}
	r.evicted(n)
	return n
}

// Size returns the number of published items.
func (r *Buffer[T, B]) Size() int {
	n, _ := r.storage.SafeSize()
	return n
}

// NumAdd returns the number of items ever added.
func (r *Buffer[T, B]) NumAdd() int64 {
	return r.numAdded.Load()
}

// Stats is a point-in-time view of a Buffer.
type Stats struct {
	Capacity     int
	SlotCapacity int
	Size         int
	Reserved     int
	Added        int64
	WeightSum    float64
	Pending      int
	Prefetched   int
}

// Stats returns current counters.
func (r *Buffer[T, B]) Stats() Stats {
	size, sum := r.storage.SafeSize()
	s := Stats{
		Capacity:     r.capacity,
		SlotCapacity: r.storage.Capacity(),
		Size:         size,
		Reserved:     r.storage.Size(),
		Added:        r.numAdded.Load(),
		WeightSum:    sum,
	}

	r.mu.Lock()
	s.Pending = len(r.sampledIDs)
	s.Prefetched = r.futures.Length()
	r.mu.Unlock()
	return s
}

// Close waits for in-flight prefetched draws and discards them. Sample fails
// afterwards; adding and draining keep working.
func (r *Buffer[T, B]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	discarded := r.futures.Length()
	for r.futures.Length() > 0 {
		r.futures.Remove()
	}
	r.mu.Unlock()

	r.inflight.Wait()
	r.logger.Debug().Int("discarded_prefetch", discarded).Msg("Replay buffer closed")
	return nil
}

func (r *Buffer[T, B]) evicted(n int) {
	r.metrics.recordEvict(n)
	r.metrics.observe(r.storage.SafeSize())
	if r.onEvict != nil {
		r.onEvict(n)
	}
}
