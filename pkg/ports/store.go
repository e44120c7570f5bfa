package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
)

// LayerStore is the append-only store of immutable layers.
// Implementations must be safe for concurrent use.
type LayerStore interface {
	// Append durably records a new layer under parent and returns its id.
	// A parent of domain.NoLayer creates a root. Appending under an unknown
	// parent fails with domain.ErrNotFound. When Append returns successfully
	// the layer survives a crash; otherwise it was never visible.
	Append(ctx context.Context, parent domain.LayerID, op domain.Operation) (domain.LayerID, error)

	// Get returns a single layer or domain.ErrNotFound.
	Get(ctx context.Context, id domain.LayerID) (domain.Layer, error)

	// Children lists the direct descendants of id in ascending id order.
	// Children of domain.NoLayer are the root layers.
	Children(ctx context.Context, id domain.LayerID) ([]domain.LayerID, error)

	// Chain returns the layers from the root down to id, inclusive.
	Chain(ctx context.Context, id domain.LayerID) ([]domain.Layer, error)

	// Count returns the number of stored layers.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// RunStore persists the mutable state of workflow runs.
// This allows a failed or interrupted run to be resumed.
type RunStore interface {
	// Save persists the state for a given run ID.
	Save(ctx context.Context, runID string, state *domain.RunState) error

	// Load retrieves the state for a given run ID.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.RunState, error)

	// Delete removes the state for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of all persisted runs.
	List(ctx context.Context) ([]string, error)
}

// Materializer resolves a layer id to its full structure.
// The returned structure is owned by the caller.
type Materializer interface {
	GetOrMaterialize(ctx context.Context, id domain.LayerID) (*domain.Structure, error)
}
