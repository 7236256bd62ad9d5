package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*NATSPublisher)(nil)
)

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishBufferStats(context.Background(), BufferStatsEvent{Size: 1}))
	assert.NoError(t, p.PublishEviction(context.Background(), EvictionEvent{Count: 1}))
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1", "replay.stats", zerolog.Nop())
	assert.Error(t, err)
}

func TestBufferStatsEvent_WireFields(t *testing.T) {
	event := BufferStatsEvent{
		Size:         3,
		Capacity:     10,
		TotalAdded:   12,
		TotalEvicted: 9,
		WeightSum:    4.5,
		Pending:      2,
		Timestamp:    time.Unix(1700000000, 0).UTC(),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, 3.0, fields["size"])
	assert.Equal(t, 9.0, fields["total_evicted"])
	assert.Equal(t, 4.5, fields["weight_sum"])
	assert.Equal(t, "2023-11-14T22:13:20Z", fields["timestamp"])
}
