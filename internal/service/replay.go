package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/prioritized"
	"github.com/cartridge/replay/internal/slotbuffer"
	"github.com/cartridge/replay/internal/storage"
	"github.com/cartridge/replay/internal/weights"
	replayv1 "github.com/cartridge/replay/pkg/api/replay/v1"
)

// ReplayService implements the Replay gRPC service
type ReplayService struct {
	replayv1.UnimplementedReplayServer
	backend storage.Backend
	logger  zerolog.Logger
}

// NewReplayService creates a new ReplayService
func NewReplayService(backend storage.Backend, logger zerolog.Logger) *ReplayService {
	return &ReplayService{
		backend: backend,
		logger:  logger.With().Str("component", "replay_service").Logger(),
	}
}

// StoreTransition stores a single transition
func (s *ReplayService) StoreTransition(ctx context.Context, req *replayv1.StoreTransitionRequest) (*replayv1.StoreTransitionResponse, error) {
	if req.Transition == nil {
		return nil, status.Error(codes.InvalidArgument, "transition is required")
	}

	// Convert wire transition to storage transition
	transition := wireToStorageTransition(req.Transition)

	// Store the transition
	if err := s.backend.Store(ctx, transition); err != nil {
		if isCallerError(err) {
			return &replayv1.StoreTransitionResponse{
				Success:      false,
				ErrorMessage: err.Error(),
			}, nil
		}
		return nil, s.toStatus(err)
	}

	return &replayv1.StoreTransitionResponse{
		TransitionId: transition.ID,
		Success:      true,
	}, nil
}

// StoreBatch stores multiple transitions in a batch
func (s *ReplayService) StoreBatch(ctx context.Context, req *replayv1.StoreBatchRequest) (*replayv1.StoreBatchResponse, error) {
	if len(req.Transitions) == 0 {
		return &replayv1.StoreBatchResponse{
			StoredCount: 0,
			FailedCount: 0,
		}, nil
	}

	transitions := make([]*storage.Transition, len(req.Transitions))
	for i, t := range req.Transitions {
		if t == nil {
			return nil, status.Errorf(codes.InvalidArgument, "transition %d is empty", i)
		}
		transitions[i] = wireToStorageTransition(t)
	}

	// Store the batch
	ids, err := s.backend.StoreBatch(ctx, transitions)
	if err != nil {
		if !isCallerError(err) {
			return nil, s.toStatus(err)
		}
		return &replayv1.StoreBatchResponse{
			StoredCount:   uint32(len(ids)),
			FailedCount:   uint32(len(req.Transitions) - len(ids)),
			ErrorMessages: []string{err.Error()},
			TransitionIds: ids,
		}, nil
	}

	return &replayv1.StoreBatchResponse{
		TransitionIds: ids,
		StoredCount:   uint32(len(ids)),
		FailedCount:   0,
	}, nil
}

// Sample samples transitions for training
func (s *ReplayService) Sample(ctx context.Context, req *replayv1.SampleRequest) (*replayv1.SampleResponse, error) {
	if req.Config == nil {
		return nil, status.Error(codes.InvalidArgument, "sample config is required")
	}

	transitions, iw, err := s.backend.Sample(ctx, &storage.SampleConfig{
		BatchSize: req.Config.BatchSize,
		Device:    req.Config.Device,
	})
	if err != nil {
		return nil, s.toStatus(err)
	}

	var totalAvailable uint32
	if stats, err := s.backend.GetStats(ctx); err == nil {
		totalAvailable = uint32(stats.TotalTransitions)
	}

	return &replayv1.SampleResponse{
		Transitions:    storageToWireTransitions(transitions),
		Weights:        iw,
		TotalAvailable: totalAvailable,
	}, nil
}

// UpdatePriorities updates the priorities of the last sampled batch
func (s *ReplayService) UpdatePriorities(ctx context.Context, req *replayv1.UpdatePrioritiesRequest) (*replayv1.UpdatePrioritiesResponse, error) {
	if len(req.TransitionIds) != len(req.NewPriorities) {
		return nil, status.Error(codes.InvalidArgument, "transition IDs and priorities must have same length")
	}

	if err := s.backend.UpdatePriorities(ctx, req.TransitionIds, req.NewPriorities); err != nil {
		return nil, s.toStatus(err)
	}

	return &replayv1.UpdatePrioritiesResponse{
		UpdatedCount: uint32(len(req.TransitionIds)),
	}, nil
}

// KeepPriorities releases the last sampled batch unchanged
func (s *ReplayService) KeepPriorities(ctx context.Context, req *replayv1.KeepPrioritiesRequest) (*replayv1.KeepPrioritiesResponse, error) {
	if err := s.backend.KeepPriorities(ctx); err != nil {
		return nil, s.toStatus(err)
	}
	return &replayv1.KeepPrioritiesResponse{}, nil
}

// DrainNew returns everything stored since the previous drain
func (s *ReplayService) DrainNew(ctx context.Context, req *replayv1.DrainNewRequest) (*replayv1.DrainNewResponse, error) {
	transitions, err := s.backend.DrainNew(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return &replayv1.DrainNewResponse{
		Transitions: storageToWireTransitions(transitions),
	}, nil
}

// GetStats returns replay buffer statistics
func (s *ReplayService) GetStats(ctx context.Context, req *replayv1.GetStatsRequest) (*replayv1.StatsResponse, error) {
	stats, err := s.backend.GetStats(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return StatsToWire(stats), nil
}

// Clear evicts the oldest transitions
func (s *ReplayService) Clear(ctx context.Context, req *replayv1.ClearRequest) (*replayv1.ClearResponse, error) {
	clearedCount, err := s.backend.Clear(ctx, req.KeepLastN)
	if err != nil {
		return nil, s.toStatus(err)
	}

	// Get remaining count
	var remainingCount uint64
	if stats, err := s.backend.GetStats(ctx); err == nil {
		remainingCount = stats.TotalTransitions
	}

	return &replayv1.ClearResponse{
		ClearedCount:   clearedCount,
		RemainingCount: remainingCount,
	}, nil
}

// isCallerError reports whether err is a rejected input the caller can fix.
func isCallerError(err error) bool {
	return errors.Is(err, weights.ErrInvalidPriority) ||
		errors.Is(err, storage.ErrNilTransition) ||
		errors.Is(err, slotbuffer.ErrLengthMismatch)
}

// toStatus maps backend errors onto gRPC codes.
func (s *ReplayService) toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case isCallerError(err),
		errors.Is(err, prioritized.ErrInvalidBatchSize),
		errors.Is(err, storage.ErrInvalidConfig),
		errors.Is(err, weights.ErrUnknownDevice):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, prioritized.ErrPendingSample),
		errors.Is(err, prioritized.ErrNoPendingSample),
		errors.Is(err, storage.ErrSampleMismatch),
		errors.Is(err, prioritized.ErrEmpty):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Replay backend failure")
		return status.Error(codes.Internal, err.Error())
	}
}

// Conversion functions

func wireToStorageTransition(w *replayv1.Transition) *storage.Transition {
	transition := &storage.Transition{
		ID:              w.Id,
		EnvID:           w.EnvId,
		EpisodeID:       w.EpisodeId,
		StepNumber:      w.StepNumber,
		State:           w.State,
		Action:          w.Action,
		NextState:       w.NextState,
		Observation:     w.Observation,
		NextObservation: w.NextObservation,
		Reward:          w.Reward,
		Done:            w.Done,
		Priority:        w.Priority,
		Metadata:        w.Metadata,
	}

	if w.Timestamp > 0 {
		transition.Timestamp = time.Unix(int64(w.Timestamp), 0)
	}

	return transition
}

func storageToWireTransition(t *storage.Transition) *replayv1.Transition {
	return &replayv1.Transition{
		Id:              t.ID,
		EnvId:           t.EnvID,
		EpisodeId:       t.EpisodeID,
		StepNumber:      t.StepNumber,
		State:           t.State,
		Action:          t.Action,
		NextState:       t.NextState,
		Observation:     t.Observation,
		NextObservation: t.NextObservation,
		Reward:          t.Reward,
		Done:            t.Done,
		Priority:        t.Priority,
		Timestamp:       uint64(t.Timestamp.Unix()),
		Metadata:        t.Metadata,
	}
}

func storageToWireTransitions(ts []*storage.Transition) []*replayv1.Transition {
	out := make([]*replayv1.Transition, len(ts))
	for i, t := range ts {
		out[i] = storageToWireTransition(t)
	}
	return out
}

// StatsToWire converts backend statistics to their wire form.
func StatsToWire(stats *storage.Stats) *replayv1.StatsResponse {
	return &replayv1.StatsResponse{
		Capacity:         stats.Capacity,
		SlotCapacity:     stats.SlotCapacity,
		TotalTransitions: stats.TotalTransitions,
		Reserved:         stats.Reserved,
		TotalAdded:       stats.TotalAdded,
		TotalEvicted:     stats.TotalEvicted,
		TotalDrained:     stats.TotalDrained,
		WeightSum:        stats.WeightSum,
		PendingSample:    stats.PendingSample,
		Prefetched:       stats.Prefetched,
	}
}
