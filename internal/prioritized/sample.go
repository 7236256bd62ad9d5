package prioritized

import (
	"errors"
	"fmt"
	"math"

	"gorgonia.org/tensor"

	"github.com/cartridge/replay/internal/weights"
)

// drawEpsilon keeps the last stratified target strictly below the weight sum
// so float rounding in the running prefix cannot push it past the end.
const drawEpsilon = 1e-6

type drawResult[B any] struct {
	batch   B
	weights *tensor.Dense
	ids     []int
	err     error
}

// Sample draws batchSize items with probability proportional to their weight
// and returns them with importance-sampling weights placed on device. The
// drawn items stay pending until UpdatePriority or KeepPriority.
func (r *Buffer[T, B]) Sample(batchSize int, device string) (B, *tensor.Dense, error) {
	var zero B
	if batchSize <= 0 {
		return zero, nil, fmt.Errorf("prioritized: sample: %w: %d", ErrInvalidBatchSize, batchSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return zero, nil, fmt.Errorf("prioritized: sample: %w", ErrClosed)
	}
	if len(r.sampledIDs) > 0 {
		return zero, nil, fmt.Errorf("prioritized: sample: %w: %d ids outstanding", ErrPendingSample, len(r.sampledIDs))
	}

	var res drawResult[B]
	if r.prefetch == 0 {
		res = r.draw(batchSize, device)
	} else {
		res = r.nextPrefetched(batchSize, device)
		r.topUp(batchSize, device)
	}
	if res.err != nil {
		return zero, nil, res.err
	}

	r.sampledIDs = res.ids
	return res.batch, res.weights, nil
}

// draw runs one weighted draw over the published prefix and compacts the
// buffer back under its logical capacity.
func (r *Buffer[T, B]) draw(batchSize int, device string) drawResult[B] {
	r.sampleMu.Lock()
	size, sum := r.storage.SafeSize()
	if size == 0 || sum <= 0 {
		r.sampleMu.Unlock()
		return drawResult[B]{err: fmt.Errorf("prioritized: sample: %w", ErrEmpty)}
	}

	items, selected, ids, err := r.scan(batchSize, size, sum)
	if err != nil {
		r.sampleMu.Unlock()
		r.logger.Error().
			Err(err).
			Int("size", size).
			Float64("weight_sum", sum).
			Int("batch_size", batchSize).
			Msg("Weighted scan failed")
		return drawResult[B]{err: err}
	}
	evicted := r.compact()
	r.sampleMu.Unlock()

	if evicted > 0 {
		r.evicted(evicted)
	}
	r.metrics.recordDraw(batchSize)

	iw, err := weights.Importance(selected, sum, size, r.beta)
	if err != nil {
		return drawResult[B]{err: fmt.Errorf("prioritized: sample: %w", err)}
	}
	iw, err = weights.ToDevice(iw, device)
	if err != nil {
		return drawResult[B]{err: fmt.Errorf("prioritized: sample: %w", err)}
	}

	return drawResult[B]{
		batch:   r.batcher.Join(items),
		weights: iw,
		ids:     ids,
	}
}

// scan walks the cumulative weights once, selecting for draw i the first item
// whose running sum exceeds a uniform point in the i-th of batchSize equal
// segments of [0, sum). Caller holds sampleMu.
func (r *Buffer[T, B]) scan(batchSize, size int, sum float64) ([]T, []float32, []int, error) {
	items := make([]T, batchSize)
	selected := make([]float32, batchSize)
	ids := make([]int, batchSize)

	segment := sum / float64(batchSize)
	ceiling := sum - sum*drawEpsilon

	var (
		acc  float64
		next int
		w    float32
		id   int
	)
	for i := 0; i < batchSize; i++ {
		target := math.Min(r.rng.Float64()*segment+float64(i)*segment, ceiling)
		for acc <= target {
			if next == size {
				return nil, nil, nil, fmt.Errorf("prioritized: sample: %w: target %g, reached %g of %g over %d items",
					ErrScanExhausted, target, acc, sum, size)
			}
			w, id = r.storage.Weight(next)
			acc += float64(w)
			next++
		}
		items[i] = r.storage.ElementAndMark(next - 1)
		selected[i] = w
		ids[i] = id
	}
	return items, selected, ids, nil
}

// compact pops the oldest published items while more than capacity slots are
// reserved. Caller holds sampleMu.
func (r *Buffer[T, B]) compact() int {
	excess := r.storage.Size() - r.capacity
	if excess <= 0 {
		return 0
	}
	published, _ := r.storage.SafeSize()
	if excess > published {
		excess = published
	}
	if excess > 0 {
		r.storage.BlockPop(excess)
	}
	return excess
}

// IsFatal reports whether err means the buffer's weight bookkeeping is no
// longer trustworthy.
func IsFatal(err error) bool {
	return errors.Is(err, ErrScanExhausted)
}
