package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/replay/internal/events"
	"github.com/cartridge/replay/internal/storage"
)

// StatsSource is the part of storage.Backend the reporter reads.
type StatsSource interface {
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Reporter periodically logs and publishes replay buffer statistics. Evictions
// are counted as they happen and published as one event per tick.
type Reporter struct {
	source    StatsSource
	publisher events.Publisher
	interval  time.Duration
	logger    zerolog.Logger

	evicted atomic.Int64
}

// NewReporter creates a new stats reporter
func NewReporter(source StatsSource, publisher events.Publisher, interval time.Duration, logger zerolog.Logger) *Reporter {
	return &Reporter{
		source:    source,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With().Str("component", "stats_reporter").Logger(),
	}
}

// RecordEviction adds n evicted transitions to the next eviction event.
// Safe for concurrent use.
func (r *Reporter) RecordEviction(n int) {
	r.evicted.Add(int64(n))
}

// Start runs the reporting loop until ctx is done. A non-positive interval
// disables reporting.
func (r *Reporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("Starting stats reporter")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Stats reporter stopped")
			return
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report publishes one stats event, plus an eviction event when transitions
// were evicted since the previous report.
func (r *Reporter) Report(ctx context.Context) {
	now := time.Now().UTC()

	stats, err := r.source.GetStats(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to read buffer stats")
		return
	}

	r.logger.Info().
		Uint64("size", stats.TotalTransitions).
		Uint64("capacity", stats.Capacity).
		Uint64("added", stats.TotalAdded).
		Uint64("evicted", stats.TotalEvicted).
		Uint64("drained", stats.TotalDrained).
		Float64("weight_sum", stats.WeightSum).
		Msg("Replay buffer stats")

	event := events.BufferStatsEvent{
		Size:         stats.TotalTransitions,
		Capacity:     stats.Capacity,
		TotalAdded:   stats.TotalAdded,
		TotalEvicted: stats.TotalEvicted,
		TotalDrained: stats.TotalDrained,
		WeightSum:    stats.WeightSum,
		Pending:      stats.PendingSample,
		Timestamp:    now,
	}
	if err := r.publisher.PublishBufferStats(ctx, event); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to publish buffer stats")
	}

	if n := r.evicted.Swap(0); n > 0 {
		if err := r.publisher.PublishEviction(ctx, events.EvictionEvent{Count: int(n), Timestamp: now}); err != nil {
			r.logger.Warn().Err(err).Int64("count", n).Msg("Failed to publish eviction event")
		}
	}
}
