package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct{ calls []string }

func (f *fakeRunner) Calculate(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error) {
	f.calls = append(f.calls, req.Tool)
	return domain.Translation{Select: domain.SelectAll()}, nil
}

func pair() *domain.Structure {
	s := domain.NewStructure()
	s.Atoms = []domain.Atom{
		{Element: 6, Position: domain.Vec3{1, 2, 0}},
		{Element: 0},
		{Element: 1, Position: domain.Vec3{3, 4, 2}},
	}
	return s
}

func TestRegistry_Recenter(t *testing.T) {
	r := registry.Builtins()
	assert.Equal(t, []string{"recenter"}, r.Names())

	op, err := r.Calculate(context.Background(), ports.CalculationRequest{Tool: "recenter", Structure: pair()})
	require.NoError(t, err)
	assert.Equal(t, domain.Translation{Select: domain.SelectAll(), Vector: domain.Vec3{-2, -3, -1}}, op)
}

func TestRegistry_Fallback(t *testing.T) {
	next := &fakeRunner{}
	r := registry.Builtins(registry.WithFallback(next))

	_, err := r.Calculate(context.Background(), ports.CalculationRequest{Tool: "relax", Structure: pair()})
	require.NoError(t, err)
	_, err = r.Calculate(context.Background(), ports.CalculationRequest{Program: "obabel", Structure: pair()})
	require.NoError(t, err)
	assert.Equal(t, []string{"relax", ""}, next.calls)

	bare := registry.NewRegistry()
	_, err = bare.Calculate(context.Background(), ports.CalculationRequest{Tool: "relax"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_Failures(t *testing.T) {
	r := registry.NewRegistry()
	r.Register("broken", func(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error) {
		return nil, errors.New("diverged")
	})
	r.Register("silent", func(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error) {
		return nil, nil
	})

	var toolErr *domain.ExternalToolError
	_, err := r.Calculate(context.Background(), ports.CalculationRequest{Tool: "broken", Structure: pair()})
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "broken", toolErr.Program)
	assert.Contains(t, err.Error(), "diverged")

	_, err = r.Calculate(context.Background(), ports.CalculationRequest{Tool: "silent", Structure: pair()})
	assert.ErrorIs(t, err, domain.ErrExternalTool)

	_, err = r.Calculate(context.Background(), ports.CalculationRequest{Tool: "broken"})
	assert.ErrorIs(t, err, domain.ErrExternalTool)

	_, err = registry.Builtins().Calculate(context.Background(), ports.CalculationRequest{Tool: "recenter", Structure: domain.NewStructure()})
	assert.ErrorIs(t, err, domain.ErrExternalTool)
}
