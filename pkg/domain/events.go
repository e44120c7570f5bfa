package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStepStart     EventType = "step_start"
	EventStepEnd       EventType = "step_end"
	EventLayerAppended EventType = "layer_appended"
	EventCheckpoint    EventType = "checkpoint"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// StepEvent represents the start or end of a workflow step.
type StepEvent struct {
	EventBase
	Index    int           `json:"index"`
	Run      string        `json:"run"`
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// LayerEvent is emitted after a layer has been durably appended.
type LayerEvent struct {
	EventBase
	Layer  LayerID `json:"layer"`
	Parent LayerID `json:"parent"`
	Kind   OpKind  `json:"kind"`
	Model  string  `json:"model"`
}

// CheckpointEvent is emitted when a checkpoint is recorded.
type CheckpointEvent struct {
	EventBase
	Checkpoint Checkpoint `json:"checkpoint"`
}

// LifecycleHooks defines callbacks for run observability.
type LifecycleHooks struct {
	OnStepStart     func(context.Context, *StepEvent)
	OnStepEnd       func(context.Context, *StepEvent)
	OnLayerAppended func(context.Context, *LayerEvent)
	OnCheckpoint    func(context.Context, *CheckpointEvent)
}

// Merge returns hooks calling h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStepStart:     chain(h.OnStepStart, other.OnStepStart),
		OnStepEnd:       chain(h.OnStepEnd, other.OnStepEnd),
		OnLayerAppended: chain(h.OnLayerAppended, other.OnLayerAppended),
		OnCheckpoint:    chain(h.OnCheckpoint, other.OnCheckpoint),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
