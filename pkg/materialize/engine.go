// Package materialize turns a layer id into the structure it denotes by
// replaying the layer chain from its root, or from a cached ancestor.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Lookup returns an already materialized structure for id, if one is known.
// Returned structures are treated as read-only.
type Lookup func(id domain.LayerID) (*domain.Structure, bool)

// Engine replays layer chains. It holds no mutable state of its own and is
// safe for concurrent use.
type Engine struct {
	store   ports.LayerStore
	handler domain.Handler
	logger  *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithHandler replaces the operation handler.
func WithHandler(h domain.Handler) Option {
	return func(e *Engine) {
		e.handler = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine reading from store.
func New(store ports.LayerStore, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		handler: DefaultHandler{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the layer store the engine reads from.
func (e *Engine) Store() ports.LayerStore { return e.store }

// Materialize replays the full chain of id starting from an empty structure.
func (e *Engine) Materialize(ctx context.Context, id domain.LayerID) (*domain.Structure, error) {
	chain, err := e.store.Chain(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Replay(ctx, nil, chain)
}

// Resume materializes id, starting from the nearest strict ancestor that
// lookup knows about. Without a hit it replays from the root.
func (e *Engine) Resume(ctx context.Context, id domain.LayerID, lookup Lookup) (*domain.Structure, error) {
	if lookup == nil {
		return e.Materialize(ctx, id)
	}
	var (
		pending []domain.Layer
		start   *domain.Structure
	)
	for cur := id; !cur.IsRoot(); {
		if cur != id {
			if s, ok := lookup(cur); ok {
				start = s
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		layer, err := e.store.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		pending = append(pending, layer)
		cur = layer.Parent
	}
	slices.Reverse(pending)
	if start != nil {
		e.logger.Debug("resuming from cached ancestor", "layer", id, "ancestor", pending[0].Parent, "replay", len(pending))
	}
	return e.Replay(ctx, start, pending)
}

// Replay applies layers in order on top of a copy of start (or an empty
// structure). The context is checked between layers. On error no partial
// structure is returned.
func (e *Engine) Replay(ctx context.Context, start *domain.Structure, layers []domain.Layer) (*domain.Structure, error) {
	s := domain.NewStructure()
	if start != nil {
		s = start.Clone()
	}
	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := layer.Operation.Apply(e.handler, s); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", layer.ID, layer.Operation.Kind(), err)
		}
	}
	s.Normalize()
	return s, nil
}
