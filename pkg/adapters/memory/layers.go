package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/aretw0/strata/pkg/domain"
)

type record struct {
	parent   domain.LayerID
	envelope domain.OperationEnvelope
}

// LayerStore implements ports.LayerStore in memory.
// Operations are kept in their encoded form, so every Get returns a fresh
// value that callers cannot use to alter the stored layer.
type LayerStore struct {
	mu       sync.RWMutex
	layers   map[domain.LayerID]record
	children map[domain.LayerID][]domain.LayerID
	next     domain.LayerID
}

// NewLayerStore creates an empty in-memory layer store.
func NewLayerStore() *LayerStore {
	return &LayerStore{
		layers:   make(map[domain.LayerID]record),
		children: make(map[domain.LayerID][]domain.LayerID),
		next:     1,
	}
}

// Append records op under parent.
func (s *LayerStore) Append(ctx context.Context, parent domain.LayerID, op domain.Operation) (domain.LayerID, error) {
	if err := ctx.Err(); err != nil {
		return domain.NoLayer, err
	}
	env, err := domain.EncodeOperation(op)
	if err != nil {
		return domain.NoLayer, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !parent.IsRoot() {
		if _, ok := s.layers[parent]; !ok {
			return domain.NoLayer, domain.LayerNotFound(parent)
		}
	}
	id := s.next
	s.next++
	s.layers[id] = record{parent: parent, envelope: env}
	s.children[parent] = append(s.children[parent], id)
	return id, nil
}

// Get returns a single layer.
func (s *LayerStore) Get(ctx context.Context, id domain.LayerID) (domain.Layer, error) {
	s.mu.RLock()
	rec, ok := s.layers[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Layer{}, domain.LayerNotFound(id)
	}
	return decode(id, rec)
}

// Children lists the direct descendants of id.
func (s *LayerStore) Children(ctx context.Context, id domain.LayerID) ([]domain.LayerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !id.IsRoot() {
		if _, ok := s.layers[id]; !ok {
			return nil, domain.LayerNotFound(id)
		}
	}
	return slices.Clone(s.children[id]), nil
}

// Chain returns the layers from the root down to id.
func (s *LayerStore) Chain(ctx context.Context, id domain.LayerID) ([]domain.Layer, error) {
	if id.IsRoot() {
		return nil, domain.LayerNotFound(id)
	}
	s.mu.RLock()
	var recs []domain.Layer
	for cur := id; !cur.IsRoot(); {
		rec, ok := s.layers[cur]
		if !ok {
			s.mu.RUnlock()
			return nil, domain.LayerNotFound(cur)
		}
		recs = append(recs, domain.Layer{ID: cur, Parent: rec.parent})
		cur = rec.parent
	}
	envs := make([]domain.OperationEnvelope, len(recs))
	for i, l := range recs {
		envs[i] = s.layers[l.ID].envelope
	}
	s.mu.RUnlock()

	out := make([]domain.Layer, len(recs))
	for i := range recs {
		op, err := domain.DecodeOperation(envs[i].Kind, envs[i].Payload)
		if err != nil {
			return nil, err
		}
		l := recs[i]
		l.Operation = op
		out[len(recs)-1-i] = l
	}
	return out, nil
}

// Count returns the number of stored layers.
func (s *LayerStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers), nil
}

// Close is a no-op.
func (s *LayerStore) Close() error { return nil }

func decode(id domain.LayerID, rec record) (domain.Layer, error) {
	op, err := domain.DecodeOperation(rec.envelope.Kind, rec.envelope.Payload)
	if err != nil {
		return domain.Layer{}, err
	}
	return domain.Layer{ID: id, Parent: rec.parent, Operation: op}, nil
}
