package domain

import (
	"maps"
	"slices"
	"time"
)

// RunStatus defines where a workflow run is in its lifecycle.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"      // Created, no step executed yet
	StatusRunning   RunStatus = "running"   // Executing steps on the active tip
	StatusBranched  RunStatus = "branched"  // The last step restored a tip from a checkpoint
	StatusFailed    RunStatus = "failed"    // A step failed; layers appended so far are kept
	StatusCompleted RunStatus = "completed" // Every step succeeded
)

// DefaultModel is the name of the tip created from a workflow base.
const DefaultModel = "default"

// Checkpoint is a named, immutable reference to a layer.
type Checkpoint struct {
	Name      string    `json:"name"`
	Layer     LayerID   `json:"layer"`
	Model     string    `json:"model,omitempty"`
	Step      int       `json:"step"`
	CreatedAt time.Time `json:"created_at"`
}

// RunState is the mutable state of a workflow run. Tips map model names to
// the layer that is currently the head of that model.
type RunState struct {
	RunID       string                `json:"run_id"`
	Title       string                `json:"title,omitempty"`
	Status      RunStatus             `json:"status"`
	Step        int                   `json:"step"`
	Active      string                `json:"active"`
	Tips        map[string]LayerID    `json:"tips"`
	Checkpoints map[string]Checkpoint `json:"checkpoints"`
	Error       string                `json:"error,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`

	// Sealed carries the encrypted form of a state written through an
	// encrypting run store. The other fields of a sealed envelope are
	// limited to RunID, Status and UpdatedAt.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewRunState creates an idle run with no tips.
func NewRunState(runID string) *RunState {
	return &RunState{
		RunID:       runID,
		Status:      StatusIdle,
		Active:      DefaultModel,
		Tips:        make(map[string]LayerID),
		Checkpoints: make(map[string]Checkpoint),
	}
}

// Tip returns the head layer of the active model.
func (s *RunState) Tip() (LayerID, bool) {
	id, ok := s.Tips[s.Active]
	return id, ok
}

// Clone returns a deep copy.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	out := *s
	out.Tips = maps.Clone(s.Tips)
	out.Checkpoints = maps.Clone(s.Checkpoints)
	out.Sealed = slices.Clone(s.Sealed)
	if out.Tips == nil {
		out.Tips = make(map[string]LayerID)
	}
	if out.Checkpoints == nil {
		out.Checkpoints = make(map[string]Checkpoint)
	}
	return &out
}
