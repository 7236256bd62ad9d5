// Package replayv1 defines the wire messages, service descriptor and client
// of the cartridge.replay.v1.Replay gRPC service.
//
// Messages travel as JSON; see Codec.
package replayv1

// Transition is a single experience transition on the wire. Timestamp is Unix seconds.
type Transition struct {
	Id              string            `json:"id,omitempty"`
	EnvId           string            `json:"env_id,omitempty"`
	EpisodeId       string            `json:"episode_id,omitempty"`
	StepNumber      uint32            `json:"step_number,omitempty"`
	State           []byte            `json:"state,omitempty"`
	Action          []byte            `json:"action,omitempty"`
	NextState       []byte            `json:"next_state,omitempty"`
	Observation     []byte            `json:"observation,omitempty"`
	NextObservation []byte            `json:"next_observation,omitempty"`
	Reward          float32           `json:"reward,omitempty"`
	Done            bool              `json:"done,omitempty"`
	Priority        float32           `json:"priority,omitempty"`
	Timestamp       uint64            `json:"timestamp,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type StoreTransitionRequest struct {
	Transition *Transition `json:"transition"`
}

type StoreTransitionResponse struct {
	TransitionId string `json:"transition_id,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type StoreBatchRequest struct {
	Transitions []*Transition `json:"transitions"`
}

type StoreBatchResponse struct {
	TransitionIds []string `json:"transition_ids,omitempty"`
	StoredCount   uint32   `json:"stored_count"`
	FailedCount   uint32   `json:"failed_count"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// SampleConfig selects the batch size and where importance weights are placed.
type SampleConfig struct {
	BatchSize uint32 `json:"batch_size"`
	Device    string `json:"device,omitempty"`
}

type SampleRequest struct {
	Config *SampleConfig `json:"config"`
}

// SampleResponse carries the sampled transitions and their importance weights
// in the same order.
type SampleResponse struct {
	Transitions    []*Transition `json:"transitions"`
	Weights        []float32     `json:"weights"`
	TotalAvailable uint32        `json:"total_available"`
}

// UpdatePrioritiesRequest must list exactly the transitions of the previous
// Sample response, in order.
type UpdatePrioritiesRequest struct {
	TransitionIds []string  `json:"transition_ids"`
	NewPriorities []float32 `json:"new_priorities"`
}

type UpdatePrioritiesResponse struct {
	UpdatedCount uint32 `json:"updated_count"`
}

type KeepPrioritiesRequest struct{}

type KeepPrioritiesResponse struct{}

type DrainNewRequest struct{}

type DrainNewResponse struct {
	Transitions []*Transition `json:"transitions"`
}

type GetStatsRequest struct{}

type StatsResponse struct {
	Capacity         uint64  `json:"capacity"`
	SlotCapacity     uint64  `json:"slot_capacity"`
	TotalTransitions uint64  `json:"total_transitions"`
	Reserved         uint64  `json:"reserved"`
	TotalAdded       uint64  `json:"total_added"`
	TotalEvicted     uint64  `json:"total_evicted"`
	TotalDrained     uint64  `json:"total_drained"`
	WeightSum        float64 `json:"weight_sum"`
	PendingSample    uint32  `json:"pending_sample"`
	Prefetched       uint32  `json:"prefetched"`
}

type ClearRequest struct {
	KeepLastN uint32 `json:"keep_last_n,omitempty"`
}

type ClearResponse struct {
	ClearedCount   uint64 `json:"cleared_count"`
	RemainingCount uint64 `json:"remaining_count"`
}
