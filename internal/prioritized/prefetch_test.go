package prioritized

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/cartridge/replay/internal/weights"
)

func TestPrefetch_KeepsQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newIntBuffer(t, 32, WithPrefetch(3), WithSeed(8), WithMetrics(reg, "prefetch"))
	for i := 0; i < 32; i++ {
		require.NoError(t, r.AddOne(i, 1))
	}

	for i := 0; i < 10; i++ {
		batch, iw, err := r.Sample(4, weights.CPU)
		require.NoError(t, err)
		assert.Len(t, batch, 4)
		assert.Len(t, weights.Float32s(iw), 4)
		assert.Equal(t, 3, r.Stats().Prefetched)
		require.NoError(t, r.UpdatePriority([]float32{2, 2, 2, 2}))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.prefetch.WithLabelValues(prefetchMiss)))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.metrics.prefetch.WithLabelValues(prefetchHit)))
}

func TestPrefetch_ShapeChangeDropsQueuedDraws(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newIntBuffer(t, 16, WithPrefetch(2), WithMetrics(reg, "shape"))
	require.NoError(t, r.Add([]int{1, 2, 3, 4}, []float32{1, 1, 1, 1}))

	batch, _, err := r.Sample(2, weights.CPU)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	r.KeepPriority()

	batch, iw, err := r.Sample(3, weights.CPU)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
	assert.Len(t, weights.Float32s(iw), 3)
	assert.Len(t, r.Pending(), 3)
	r.KeepPriority()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.prefetch.WithLabelValues(prefetchMismatch)))
}

func TestPrefetch_EmptyDrawIsRetried(t *testing.T) {
	r := newIntBuffer(t, 8, WithPrefetch(1))

	_, _, err := r.Sample(2, weights.CPU)
	assert.ErrorIs(t, err, ErrEmpty)

	// the queued draw saw an empty buffer; the next call must see the new items
	require.NoError(t, r.Add([]int{5, 6}, []float32{1, 1}))
	batch, _, err := r.Sample(2, weights.CPU)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	r.KeepPriority()
}

func TestPrefetch_CloseStopsSampling(t *testing.T) {
	r, err := New[int, []int](8, SliceBatcher[int]{}, WithPrefetch(4))
	require.NoError(t, err)
	require.NoError(t, r.Add([]int{1, 2, 3}, []float32{1, 1, 1}))

	_, _, err = r.Sample(1, weights.CPU)
	require.NoError(t, err)
	r.KeepPriority()

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Zero(t, r.Stats().Prefetched)

	_, _, err = r.Sample(1, weights.CPU)
	assert.ErrorIs(t, err, ErrClosed)

	// producers and drains keep working
	require.NoError(t, r.AddOne(4, 1))
	n, _, _, err := r.GetNewContent()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPrefetch_DeviceMove(t *testing.T) {
	var mu sync.Mutex
	moved := 0
	require.NoError(t, weights.RegisterDevice("fake:0", weights.MoverFunc(func(in *tensor.Dense) (*tensor.Dense, error) {
		mu.Lock()
		moved++
		mu.Unlock()
		return in, nil
	})))
	defer weights.UnregisterDevice("fake:0")

	r := newIntBuffer(t, 8, WithPrefetch(2))
	require.NoError(t, r.Add([]int{1, 2, 3}, []float32{1, 2, 3}))

	_, _, err := r.Sample(2, "fake:0")
	require.NoError(t, err)
	r.KeepPriority()
	require.NoError(t, r.Close())

	mu.Lock()
	defer mu.Unlock()
	// one synchronous draw plus the two queued ones
	assert.Equal(t, 3, moved)
}
