package events

import (
	"context"
	"time"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishBufferStats(ctx context.Context, payload BufferStatsEvent) error
	PublishEviction(ctx context.Context, payload EvictionEvent) error
}

// BufferStatsEvent is emitted periodically with the replay buffer counters.
type BufferStatsEvent struct {
	Size         uint64    `json:"size"`
	Capacity     uint64    `json:"capacity"`
	TotalAdded   uint64    `json:"total_added"`
	TotalEvicted uint64    `json:"total_evicted"`
	TotalDrained uint64    `json:"total_drained"`
	WeightSum    float64   `json:"weight_sum"`
	Pending      uint32    `json:"pending"`
	Timestamp    time.Time `json:"timestamp"`
}

// EvictionEvent reports transitions dropped to keep the buffer under capacity.
type EvictionEvent struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NoopPublisher logs nothing; useful for tests.
type NoopPublisher struct{}

// PublishBufferStats satisfies Publisher.
func (NoopPublisher) PublishBufferStats(context.Context, BufferStatsEvent) error { return nil }

// PublishEviction satisfies Publisher.
func (NoopPublisher) PublishEviction(context.Context, EvictionEvent) error { return nil }
