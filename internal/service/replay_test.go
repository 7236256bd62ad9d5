package service

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cartridge/replay/internal/storage"
	replayv1 "github.com/cartridge/replay/pkg/api/replay/v1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestClient(t *testing.T, capacity int) replayv1.ReplayClient {
	t.Helper()

	backend, err := storage.NewMemoryBackend(storage.MemoryConfig{
		Capacity: capacity,
		Alpha:    1,
		Beta:     0.4,
		Seed:     7,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	replayv1.RegisterReplayServer(server, NewReplayService(backend, zerolog.Nop()))
	go func() {
		_ = server.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
		_ = backend.Close()
	})
	return replayv1.NewReplayClient(conn)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStoreSampleUpdate(t *testing.T) {
	client := newTestClient(t, 32)
	ctx := testContext(t)

	stored, err := client.StoreTransition(ctx, &replayv1.StoreTransitionRequest{
		Transition: &replayv1.Transition{EnvId: "tictactoe", State: []byte{1, 2}, Reward: 1, Priority: 2},
	})
	require.NoError(t, err)
	assert.True(t, stored.Success)
	assert.NotEmpty(t, stored.TransitionId)

	batch, err := client.StoreBatch(ctx, &replayv1.StoreBatchRequest{
		Transitions: []*replayv1.Transition{{EnvId: "tictactoe"}, {EnvId: "tictactoe", Priority: 4}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), batch.StoredCount)
	assert.Len(t, batch.TransitionIds, 2)

	sample, err := client.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 4}})
	require.NoError(t, err)
	require.Len(t, sample.Transitions, 4)
	require.Len(t, sample.Weights, 4)
	assert.Equal(t, uint32(3), sample.TotalAvailable)

	_, err = client.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 4}})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	ids := make([]string, len(sample.Transitions))
	priorities := make([]float32, len(sample.Transitions))
	for i, tr := range sample.Transitions {
		ids[i] = tr.Id
		priorities[i] = 1
	}

	_, err = client.UpdatePriorities(ctx, &replayv1.UpdatePrioritiesRequest{TransitionIds: ids[:1], NewPriorities: priorities})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	updated, err := client.UpdatePriorities(ctx, &replayv1.UpdatePrioritiesRequest{TransitionIds: ids, NewPriorities: priorities})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), updated.UpdatedCount)

	_, err = client.UpdatePriorities(ctx, &replayv1.UpdatePrioritiesRequest{TransitionIds: ids, NewPriorities: priorities})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestKeepPrioritiesAndStats(t *testing.T) {
	client := newTestClient(t, 8)
	ctx := testContext(t)

	_, err := client.StoreBatch(ctx, &replayv1.StoreBatchRequest{
		Transitions: []*replayv1.Transition{{Priority: 1}, {Priority: 3}},
	})
	require.NoError(t, err)

	_, err = client.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 1}})
	require.NoError(t, err)

	stats, err := client.GetStats(ctx, &replayv1.GetStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stats.PendingSample)
	assert.Equal(t, uint64(2), stats.TotalTransitions)
	assert.InDelta(t, 4.0, stats.WeightSum, 1e-6)

	_, err = client.KeepPriorities(ctx, &replayv1.KeepPrioritiesRequest{})
	require.NoError(t, err)

	stats, err = client.GetStats(ctx, &replayv1.GetStatsRequest{})
	require.NoError(t, err)
	assert.Zero(t, stats.PendingSample)
	assert.InDelta(t, 4.0, stats.WeightSum, 1e-6)
}

func TestDrainAndClear(t *testing.T) {
	client := newTestClient(t, 8)
	ctx := testContext(t)

	_, err := client.StoreBatch(ctx, &replayv1.StoreBatchRequest{
		Transitions: []*replayv1.Transition{{StepNumber: 1}, {StepNumber: 2}, {StepNumber: 3}},
	})
	require.NoError(t, err)

	cleared, err := client.Clear(ctx, &replayv1.ClearRequest{KeepLastN: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cleared.ClearedCount)
	assert.Equal(t, uint64(2), cleared.RemainingCount)

	drained, err := client.DrainNew(ctx, &replayv1.DrainNewRequest{})
	require.NoError(t, err)
	require.Len(t, drained.Transitions, 2)
	assert.Equal(t, uint32(2), drained.Transitions[0].StepNumber)
	assert.Equal(t, uint32(3), drained.Transitions[1].StepNumber)

	drained, err = client.DrainNew(ctx, &replayv1.DrainNewRequest{})
	require.NoError(t, err)
	assert.Empty(t, drained.Transitions)
}

func TestErrorMapping(t *testing.T) {
	client := newTestClient(t, 4)
	ctx := testContext(t)

	_, err := client.StoreTransition(ctx, &replayv1.StoreTransitionRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err := client.StoreTransition(ctx, &replayv1.StoreTransitionRequest{
		Transition: &replayv1.Transition{Priority: -1},
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.ErrorMessage)

	_, err = client.Sample(ctx, &replayv1.SampleRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 1}})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "empty buffer")

	_, err = client.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 0}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.StoreTransition(ctx, &replayv1.StoreTransitionRequest{Transition: &replayv1.Transition{}})
	require.NoError(t, err)
	_, err = client.Sample(ctx, &replayv1.SampleRequest{Config: &replayv1.SampleConfig{BatchSize: 1, Device: "cuda:9"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
