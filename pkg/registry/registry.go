// Package registry runs calculations in-process. Tools registered here are
// Go functions; unknown tools are handed to a fallback runner, typically
// the process runner.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Func computes the operation to append from the request's structure.
type Func func(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error)

// Registry manages the available in-process tools. It implements
// ports.CalculationRunner.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Func
	fallback ports.CalculationRunner
}

// Option configures a Registry.
type Option func(*Registry)

// WithFallback delegates requests for unregistered tools to next.
func WithFallback(next ports.CalculationRunner) Option {
	return func(r *Registry) {
		r.fallback = next
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools: make(map[string]Func),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Names lists the registered tools in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Calculate runs the tool named by req.Tool. A failing tool is reported as
// a *domain.ExternalToolError so the step fails the same way a failing
// program would.
func (r *Registry) Calculate(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error) {
	r.mu.RLock()
	fn, ok := r.tools[req.Tool]
	r.mu.RUnlock()

	if !ok || req.Tool == "" {
		if r.fallback != nil {
			return r.fallback.Calculate(ctx, req)
		}
		return nil, &domain.NotFoundError{Kind: "tool", Name: req.Tool}
	}
	if req.Structure == nil {
		return nil, &domain.ExternalToolError{Program: req.Tool, Reason: "no input structure"}
	}

	op, err := fn(ctx, req)
	if err != nil {
		return nil, &domain.ExternalToolError{Program: req.Tool, Reason: err.Error()}
	}
	if op == nil {
		return nil, &domain.ExternalToolError{Program: req.Tool, Reason: "produced no operation"}
	}
	return op, nil
}

var _ ports.CalculationRunner = (*Registry)(nil)

// Builtins returns a registry holding the standard in-process tools.
func Builtins(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.Register("recenter", Recenter)
	return r
}

// Recenter translates every atom so the geometric center of the occupied
// atoms sits at the origin.
func Recenter(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error) {
	idx := req.Structure.OccupiedIndexes()
	if len(idx) == 0 {
		return nil, fmt.Errorf("structure has no atoms")
	}
	var sum domain.Vec3
	for _, i := range idx {
		p := req.Structure.Atoms[i].Position
		for k := range sum {
			sum[k] += p[k]
		}
	}
	var shift domain.Vec3
	for k := range sum {
		shift[k] = -sum[k] / float64(len(idx))
	}
	return domain.Translation{Select: domain.SelectAll(), Vector: shift}, nil
}
