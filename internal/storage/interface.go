package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cartridge/replay/internal/prioritized"
)

var (
	// ErrNilTransition is returned when a nil transition is stored.
	ErrNilTransition = errors.New("nil transition")
	// ErrSampleMismatch is returned when priority updates name transitions
	// other than the ones last sampled, or in a different order.
	ErrSampleMismatch = errors.New("transition ids do not match the pending sample")
	// ErrInvalidConfig is returned for a missing or malformed configuration.
	ErrInvalidConfig = errors.New("invalid storage configuration")

	// ErrClosed is returned once the backend has been closed.
	ErrClosed = prioritized.ErrClosed
)

// Transition represents a single experience transition
type Transition struct {
	ID              string            `json:"id"`
	EnvID           string            `json:"env_id"`
	EpisodeID       string            `json:"episode_id"`
	StepNumber      uint32            `json:"step_number"`
	State           []byte            `json:"state"`
	Action          []byte            `json:"action"`
	NextState       []byte            `json:"next_state"`
	Observation     []byte            `json:"observation"`
	NextObservation []byte            `json:"next_observation"`
	Reward          float32           `json:"reward"`
	Done            bool              `json:"done"`
	Priority        float32           `json:"priority"`
	Timestamp       time.Time         `json:"timestamp"`
	Metadata        map[string]string `json:"metadata"`
}

// Clone returns a deep copy of t.
func (t *Transition) Clone() *Transition {
	if t == nil {
		return nil
	}
	c := *t
	c.State = cloneBytes(t.State)
	c.Action = cloneBytes(t.Action)
	c.NextState = cloneBytes(t.NextState)
	c.Observation = cloneBytes(t.Observation)
	c.NextObservation = cloneBytes(t.NextObservation)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// SampleConfig defines parameters for sampling transitions
type SampleConfig struct {
	BatchSize uint32
	// Device names where the importance weights are placed; empty means CPU.
	Device string
}

// Stats represents replay buffer statistics
type Stats struct {
	Capacity         uint64
	SlotCapacity     uint64
	TotalTransitions uint64
	Reserved         uint64
	TotalAdded       uint64
	TotalEvicted     uint64
	TotalDrained     uint64
	WeightSum        float64
	PendingSample    uint32
	Prefetched       uint32
}

// Backend defines the interface for replay buffer storage implementations
type Backend interface {
	// Store a single transition
	Store(ctx context.Context, transition *Transition) error

	// Store multiple transitions in a batch
	StoreBatch(ctx context.Context, transitions []*Transition) ([]string, error)

	// Sample transitions in proportion to priority, with importance weights
	Sample(ctx context.Context, config *SampleConfig) ([]*Transition, []float32, error)

	// Update priorities of the last sampled transitions
	UpdatePriorities(ctx context.Context, transitionIDs []string, priorities []float32) error

	// Release the last sample without changing priorities
	KeepPriorities(ctx context.Context) error

	// Remove and return everything stored since the previous drain
	DrainNew(ctx context.Context) ([]*Transition, error)

	// Get buffer statistics
	GetStats(ctx context.Context) (*Stats, error)

	// Evict the oldest transitions until at most keepLastN remain
	Clear(ctx context.Context, keepLastN uint32) (uint64, error)

	// Close the backend and cleanup resources
	Close() error
}
