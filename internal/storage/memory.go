package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/cartridge/replay/internal/prioritized"
	"github.com/cartridge/replay/internal/weights"
)

// MemoryConfig configures a MemoryBackend.
type MemoryConfig struct {
	Capacity int
	Alpha    float32
	Beta     float32
	Prefetch int
	Seed     int64

	Logger zerolog.Logger
	// Registerer receives the buffer's collectors when set.
	Registerer prometheus.Registerer
	// OnEvict is called with each eviction count. It may run on a prefetch goroutine.
	OnEvict func(n int)
}

// MemoryBackend implements an in-memory prioritized replay buffer
type MemoryBackend struct {
	buffer   *prioritized.Buffer[*Transition, []*Transition]
	capacity int
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []string // IDs of the last sample, in sample order

	closed  atomic.Bool
	evicted atomic.Uint64
	drained atomic.Uint64
}

// transitionBatcher copies transitions in and out so callers never share
// memory with stored records.
type transitionBatcher struct{}

func (transitionBatcher) Join(items []*Transition) []*Transition {
	out := make([]*Transition, len(items))
	for i, t := range items {
		out[i] = t.Clone()
	}
	return out
}

func (transitionBatcher) Split(batch []*Transition) []*Transition {
	return transitionBatcher{}.Join(batch)
}

// NewMemoryBackend creates a new in-memory storage backend
func NewMemoryBackend(cfg MemoryConfig) (*MemoryBackend, error) {
	m := &MemoryBackend{
		capacity: cfg.Capacity,
		logger:   cfg.Logger.With().Str("component", "memory_backend").Logger(),
	}

	opts := []prioritized.Option{
		prioritized.WithAlpha(cfg.Alpha),
		prioritized.WithBeta(cfg.Beta),
		prioritized.WithPrefetch(cfg.Prefetch),
		prioritized.WithSeed(cfg.Seed),
		prioritized.WithLogger(cfg.Logger),
		prioritized.WithEvictCallback(func(n int) {
			m.evicted.Add(uint64(n))
			if cfg.OnEvict != nil {
				cfg.OnEvict(n)
			}
		}),
	}
	if cfg.Registerer != nil {
		opts = append(opts, prioritized.WithMetrics(cfg.Registerer, "memory"))
	}

	buffer, err := prioritized.New[*Transition, []*Transition](cfg.Capacity, transitionBatcher{}, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	m.buffer = buffer
	return m, nil
}

// Store implements Backend.Store
func (m *MemoryBackend) Store(ctx context.Context, transition *Transition) error {
	if transition == nil {
		return ErrNilTransition
	}
	_, err := m.StoreBatch(ctx, []*Transition{transition})
	return err
}

// StoreBatch implements Backend.StoreBatch. Transitions are appended in
// blocks of at most the buffer capacity; the returned IDs cover the blocks
// that were accepted. Cancelling ctx stops the wait for buffer space but
// the pending block is still appended once space frees up, with the IDs
// already written into its transitions.
//
// A zero Priority is read as unset and stored as 1.0, so a transition cannot
// enter the buffer with zero weight. UpdatePriorities accepts zero.
func (m *MemoryBackend) StoreBatch(ctx context.Context, transitions []*Transition) ([]string, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	now := time.Now()
	ids := make([]string, len(transitions))
	priorities := make([]float32, len(transitions))
	for i, transition := range transitions {
		if transition == nil {
			return nil, fmt.Errorf("storage: transition %d: %w", i, ErrNilTransition)
		}

		// Generate ID if not provided
		if transition.ID == "" {
			transition.ID = uuid.New().String()
		}

		// Set timestamp if not provided
		if transition.Timestamp.IsZero() {
			transition.Timestamp = now
		}

		// Set default priority if not provided
		if transition.Priority == 0 {
			transition.Priority = 1.0
		}

		ids[i] = transition.ID
		priorities[i] = transition.Priority
	}
	if err := weights.Validate(priorities); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	for start := 0; start < len(transitions); start += m.capacity {
		end := start + m.capacity
		if end > len(transitions) {
			end = len(transitions)
		}

		select {
		case err := <-m.buffer.AddBatchAsync(transitions[start:end], priorities[start:end]):
			if err != nil {
				return ids[:start], fmt.Errorf("storage: store: %w", err)
			}
		case <-ctx.Done():
			m.logger.Warn().
				Err(ctx.Err()).
				Int("stored", start).
				Int("requested", len(transitions)).
				Msg("Store cancelled while waiting for buffer space")
			return ids[:start], ctx.Err()
		}
	}

	return ids, nil
}

// Sample implements Backend.Sample
func (m *MemoryBackend) Sample(ctx context.Context, config *SampleConfig) ([]*Transition, []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if config == nil {
		return nil, nil, fmt.Errorf("storage: %w: nil sample config", ErrInvalidConfig)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sampled, iw, err := m.buffer.Sample(int(config.BatchSize), config.Device)
	if err != nil {
		if prioritized.IsFatal(err) {
			m.logger.Error().Err(err).Msg("Replay buffer weights are corrupted")
		}
		return nil, nil, fmt.Errorf("storage: %w", err)
	}

	m.pending = make([]string, len(sampled))
	for i, t := range sampled {
		m.pending[i] = t.ID
	}
	return sampled, weights.Float32s(iw), nil
}

// UpdatePriorities implements Backend.UpdatePriorities. The IDs must be the
// ones returned by the last Sample, in the same order.
func (m *MemoryBackend) UpdatePriorities(ctx context.Context, transitionIDs []string, priorities []float32) error {
	if len(transitionIDs) != len(priorities) {
		return fmt.Errorf("storage: %w: %d IDs vs %d priorities", prioritized.ErrLengthMismatch, len(transitionIDs), len(priorities))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		if len(transitionIDs) == 0 {
			return nil
		}
		return fmt.Errorf("storage: %w", prioritized.ErrNoPendingSample)
	}
	if len(transitionIDs) != len(m.pending) {
		return fmt.Errorf("storage: %w: %d IDs for a sample of %d", ErrSampleMismatch, len(transitionIDs), len(m.pending))
	}
	for i, id := range transitionIDs {
		if id != m.pending[i] {
			return fmt.Errorf("storage: %w: position %d is %q, sampled %q", ErrSampleMismatch, i, id, m.pending[i])
		}
	}

	if err := m.buffer.UpdatePriority(priorities); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	m.pending = nil
	return nil
}

// KeepPriorities implements Backend.KeepPriorities
func (m *MemoryBackend) KeepPriorities(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer.KeepPriority()
	m.pending = nil
	return nil
}

// DrainNew implements Backend.DrainNew
func (m *MemoryBackend) DrainNew(ctx context.Context) ([]*Transition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, drained, _, err := m.buffer.GetNewContent()
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	m.drained.Add(uint64(n))
	return drained, nil
}

// GetStats implements Backend.GetStats
func (m *MemoryBackend) GetStats(ctx context.Context) (*Stats, error) {
	s := m.buffer.Stats()
	return &Stats{
		Capacity:         uint64(s.Capacity),
		SlotCapacity:     uint64(s.SlotCapacity),
		TotalTransitions: uint64(s.Size),
		Reserved:         uint64(s.Reserved),
		TotalAdded:       uint64(s.Added),
		TotalEvicted:     m.evicted.Load(),
		TotalDrained:     m.drained.Load(),
		WeightSum:        s.WeightSum,
		PendingSample:    uint32(s.Pending),
		Prefetched:       uint32(s.Prefetched),
	}, nil
}

// Clear implements Backend.Clear
func (m *MemoryBackend) Clear(ctx context.Context, keepLastN uint32) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := m.buffer.Trim(int(keepLastN))
	m.logger.Info().
		Int("removed", removed).
		Uint32("keep_last_n", keepLastN).
		Msg("Cleared replay buffer")
	return uint64(removed), nil
}

// Close implements Backend.Close
func (m *MemoryBackend) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.buffer.Close()
}
