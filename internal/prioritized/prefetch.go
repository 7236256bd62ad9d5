package prioritized

import (
	"errors"
)

const (
	prefetchHit      = "hit"
	prefetchMiss     = "miss"
	prefetchMismatch = "mismatch"
	prefetchEmpty    = "empty"
)

// future is a draw running on its own goroutine. res is valid once done is closed.
type future[B any] struct {
	batchSize int
	device    string
	done      chan struct{}
	res       drawResult[B]
}

// schedule starts a background draw and queues its future. Caller holds mu.
func (r *Buffer[T, B]) schedule(batchSize int, device string) {
	f := &future[B]{
		batchSize: batchSize,
		device:    device,
		done:      make(chan struct{}),
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		f.res = r.draw(batchSize, device)
		close(f.done)
	}()
	r.futures.Add(f)
}

// topUp refills the prefetch queue to its configured depth. Caller holds mu.
func (r *Buffer[T, B]) topUp(batchSize int, device string) {
	for r.futures.Length() < r.prefetch {
		r.schedule(batchSize, device)
	}
}

// nextPrefetched resolves the oldest queued draw. Draws requested with a
// different shape are dropped, and an empty prefetched draw is retried
// synchronously since items may have arrived since. Caller holds mu.
func (r *Buffer[T, B]) nextPrefetched(batchSize int, device string) drawResult[B] {
	for r.futures.Length() > 0 {
		f := r.futures.Remove().(*future[B])
		if f.batchSize != batchSize || f.device != device {
			r.metrics.recordPrefetch(prefetchMismatch)
			r.logger.Debug().
				Int("prefetched_batch_size", f.batchSize).
				Str("prefetched_device", f.device).
				Int("batch_size", batchSize).
				Str("device", device).
				Msg("Dropping prefetched draw")
			continue
		}

		<-f.done
		if errors.Is(f.res.err, ErrEmpty) {
			r.metrics.recordPrefetch(prefetchEmpty)
			return r.draw(batchSize, device)
		}
		r.metrics.recordPrefetch(prefetchHit)
		return f.res
	}

	r.metrics.recordPrefetch(prefetchMiss)
	return r.draw(batchSize, device)
}
