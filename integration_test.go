package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/service"
	"github.com/cartridge/replay/internal/storage"
	replayv1 "github.com/cartridge/replay/pkg/api/replay/v1"
)

func newService(t *testing.T, cfg storage.MemoryConfig) replayv1.ReplayServer {
	t.Helper()
	cfg.Logger = zerolog.Nop()
	backend, err := storage.NewMemoryBackend(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return service.NewReplayService(backend, zerolog.Nop())
}

// tictactoeStep builds a transition in the engine's TicTacToe encoding:
// an 11-byte state (9 board cells, current player, winner), a 1-byte action
// and a 116-byte observation (29 little-endian f32 values).
func tictactoeStep(episode string, step uint32, action byte, priority float32) *replayv1.Transition {
	state := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	next := append([]byte(nil), state...)
	next[action] = 1
	next[9] = 2
	return &replayv1.Transition{
		EnvId:           "tictactoe",
		EpisodeId:       episode,
		StepNumber:      step,
		State:           state,
		Action:          []byte{action},
		NextState:       next,
		Observation:     make([]byte, 116),
		NextObservation: make([]byte, 116),
		Priority:        priority,
	}
}

// TestReplayServiceIntegration drives one learner cycle through the service:
// store, sample, update priorities, drain, clear.
func TestReplayServiceIntegration(t *testing.T) {
	svc := newService(t, storage.MemoryConfig{Capacity: 1000, Alpha: 0.6, Beta: 0.4, Seed: 1})
	ctx := context.Background()

	transitions := []*replayv1.Transition{
		tictactoeStep("episode-1", 0, 4, 1.0),
		tictactoeStep("episode-1", 1, 0, 1.0),
		tictactoeStep("episode-1", 2, 8, 4.0),
	}

	t.Run("StoreBatch", func(t *testing.T) {
		resp, err := svc.StoreBatch(ctx, &replayv1.StoreBatchRequest{Transitions: transitions})
		require.NoError(t, err)
		assert.Equal(t, uint32(3), resp.StoredCount)
		assert.Equal(t, uint32(0), resp.FailedCount)
		assert.Len(t, resp.TransitionIds, 3)
	})

	t.Run("GetStats", func(t *testing.T) {
		resp, err := svc.GetStats(ctx, &replayv1.GetStatsRequest{})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), resp.TotalTransitions)
		assert.Equal(t, uint64(3), resp.TotalAdded)
		assert.Equal(t, uint64(1000), resp.Capacity)
		assert.Equal(t, uint64(1250), resp.SlotCapacity)
		assert.Zero(t, resp.PendingSample)
	})

	t.Run("SampleAndUpdatePriorities", func(t *testing.T) {
		resp, err := svc.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 2}})
		require.NoError(t, err)
		require.Len(t, resp.Transitions, 2)
		require.Len(t, resp.Weights, 2)
		assert.Equal(t, uint32(3), resp.TotalAvailable)

		var maxWeight float32
		for i, sampled := range resp.Transitions {
			assert.Equal(t, "tictactoe", sampled.EnvId)
			assert.Len(t, sampled.State, 11)
			assert.Len(t, sampled.Action, 1)
			assert.Len(t, sampled.Observation, 116)
			assert.Greater(t, resp.Weights[i], float32(0))
			if resp.Weights[i] > maxWeight {
				maxWeight = resp.Weights[i]
			}
		}
		assert.InDelta(t, 1.0, maxWeight, 1e-6)

		_, err = svc.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 2}})
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))

		ids := []string{resp.Transitions[0].Id, resp.Transitions[1].Id}
		updated, err := svc.UpdatePriorities(ctx, &replayv1.UpdatePrioritiesRequest{
			TransitionIds: ids,
			NewPriorities: []float32{5.0, 0.5},
		})
		require.NoError(t, err)
		assert.Equal(t, uint32(2), updated.UpdatedCount)
	})

	t.Run("KeepPriorities", func(t *testing.T) {
		_, err := svc.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 1}})
		require.NoError(t, err)

		_, err = svc.KeepPriorities(ctx, &replayv1.KeepPrioritiesRequest{})
		require.NoError(t, err)

		stats, err := svc.GetStats(ctx, &replayv1.GetStatsRequest{})
		require.NoError(t, err)
		assert.Zero(t, stats.PendingSample)
	})

	t.Run("DrainNew", func(t *testing.T) {
		resp, err := svc.DrainNew(ctx, &replayv1.DrainNewRequest{})
		require.NoError(t, err)
		require.Len(t, resp.Transitions, 3)
		for i, drained := range resp.Transitions {
			assert.Equal(t, uint32(i), drained.StepNumber)
		}

		stats, err := svc.GetStats(ctx, &replayv1.GetStatsRequest{})
		require.NoError(t, err)
		assert.Zero(t, stats.TotalTransitions)
		assert.Equal(t, uint64(3), stats.TotalDrained)
	})

	t.Run("Clear", func(t *testing.T) {
		for step := uint32(0); step < 5; step++ {
			_, err := svc.StoreTransition(ctx, &replayv1.StoreTransitionRequest{
				Transition: tictactoeStep("episode-2", step, byte(step), 1.0),
			})
			require.NoError(t, err)
		}

		resp, err := svc.Clear(ctx, &replayv1.ClearRequest{KeepLastN: 2})
		require.NoError(t, err)
		assert.Equal(t, uint64(3), resp.ClearedCount)

		stats, err := svc.GetStats(ctx, &replayv1.GetStatsRequest{})
		require.NoError(t, err)
		assert.Equal(t, resp.RemainingCount, stats.TotalTransitions)
	})
}

// TestEngineDataFormats verifies that transitions come back byte for byte in
// the engine's encoding.
func TestEngineDataFormats(t *testing.T) {
	svc := newService(t, storage.MemoryConfig{Capacity: 16, Alpha: 0.6, Beta: 0.4})
	ctx := context.Background()

	transition := tictactoeStep("test-episode", 0, 4, 1.0)
	transition.Reward = 0.5
	transition.Done = true
	transition.Metadata = map[string]string{"actor_id": "actor-1"}

	storeResp, err := svc.StoreTransition(ctx, &replayv1.StoreTransitionRequest{Transition: transition})
	require.NoError(t, err)
	assert.True(t, storeResp.Success)

	sampleResp, err := svc.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 1}})
	require.NoError(t, err)
	require.Len(t, sampleResp.Transitions, 1)

	sampled := sampleResp.Transitions[0]
	assert.Equal(t, storeResp.TransitionId, sampled.Id)
	assert.Equal(t, transition.State, sampled.State)
	assert.Equal(t, transition.Action, sampled.Action)
	assert.Equal(t, transition.NextState, sampled.NextState)
	assert.Equal(t, transition.Observation, sampled.Observation)
	assert.Equal(t, transition.NextObservation, sampled.NextObservation)
	assert.Equal(t, float32(0.5), sampled.Reward)
	assert.True(t, sampled.Done)
	assert.Equal(t, "actor-1", sampled.Metadata["actor_id"])
	assert.NotZero(t, sampled.Timestamp)
}

// TestActorsAndLearner runs several actors storing episodes while a learner
// samples with prefetch and reports priorities back.
func TestActorsAndLearner(t *testing.T) {
	svc := newService(t, storage.MemoryConfig{Capacity: 64, Alpha: 0.6, Beta: 0.4, Prefetch: 2, Seed: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const actors, episodes = 4, 25

	var wg sync.WaitGroup
	for a := 0; a < actors; a++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := 0; e < episodes; e++ {
				batch := make([]*replayv1.Transition, 0, 5)
				for step := uint32(0); step < 5; step++ {
					batch = append(batch, tictactoeStep("episode", step, byte(step), float32(step+1)))
				}
				resp, err := svc.StoreBatch(ctx, &replayv1.StoreBatchRequest{Transitions: batch})
				if !assert.NoError(t, err) || !assert.Equal(t, uint32(5), resp.StoredCount) {
					return
				}
			}
		}()
	}

	actorsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(actorsDone)
	}()

	// Stores block once the slot region is full, so the learner keeps
	// sampling until every actor has finished.
	learned := 0
	for running := true; running || learned < 50; {
		select {
		case <-actorsDone:
			running = false
		default:
		}

		resp, err := svc.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 8}})
		if status.Code(err) == codes.FailedPrecondition {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		require.Len(t, resp.Transitions, 8)

		ids := make([]string, len(resp.Transitions))
		priorities := make([]float32, len(resp.Transitions))
		for i, tr := range resp.Transitions {
			ids[i] = tr.Id
			priorities[i] = 1 + float32(i)
		}
		_, err = svc.UpdatePriorities(ctx, &replayv1.UpdatePrioritiesRequest{TransitionIds: ids, NewPriorities: priorities})
		require.NoError(t, err)
		learned++
	}

	// A prefetched draw may still be compacting; its eviction count lands
	// once it finishes.
	assert.Eventually(t, func() bool {
		stats, err := svc.GetStats(ctx, &replayv1.GetStatsRequest{})
		return err == nil &&
			stats.TotalAdded == uint64(actors*episodes*5) &&
			stats.TotalTransitions <= stats.SlotCapacity &&
			stats.TotalAdded == stats.TotalTransitions+stats.TotalEvicted
	}, time.Second, 5*time.Millisecond)
}
