package materialize_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/materialize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingHandler counts every operation it applies.
type countingHandler struct {
	materialize.DefaultHandler
	applied atomic.Int64
}

func (h *countingHandler) Translation(s *domain.Structure, op domain.Translation) error {
	h.applied.Add(1)
	return h.DefaultHandler.Translation(s, op)
}

func water() domain.Fill {
	return domain.Fill{Structure: domain.Structure{
		Title: "water",
		Atoms: []domain.Atom{
			{Element: 8},
			{Element: 1, Position: domain.Vec3{0.96, 0, 0}},
			{Element: 1, Position: domain.Vec3{-0.24, 0.93, 0}},
		},
		Bonds: []domain.Bond{{A: 1, B: 0, Order: 1}, {A: 0, B: 2, Order: 1}},
		IDs:   map[string]int{"O": 0},
	}}
}

func shiftX() domain.Translation {
	return domain.Translation{Select: domain.SelectAll(), Vector: domain.Vec3{1, 0, 0}}
}

func TestMaterialize_ReplaysChain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLayerStore()
	engine := materialize.New(store)

	tip, err := store.Append(ctx, domain.NoLayer, water())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		tip, err = store.Append(ctx, tip, shiftX())
		require.NoError(t, err)
	}

	s, err := engine.Materialize(ctx, tip)
	require.NoError(t, err)
	assert.Equal(t, "water", s.Title)
	assert.InDelta(t, 3.0, s.Atoms[0].Position[0], 1e-12)
	assert.InDelta(t, 3.96, s.Atoms[1].Position[0], 1e-12)
	assert.Equal(t, []domain.Bond{{A: 0, B: 1, Order: 1}, {A: 0, B: 2, Order: 1}}, s.Bonds, "bonds are normalized")
}

func TestMaterialize_Deterministic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLayerStore()
	engine := materialize.New(store)

	root, err := store.Append(ctx, domain.NoLayer, water())
	require.NoError(t, err)
	tip, err := store.Append(ctx, root, domain.Rotation{
		Select: domain.SelectAll(),
		Center: domain.SelectID("O"),
		Axis:   domain.Vec3{0, 0, 1},
		Angle:  0.7,
	})
	require.NoError(t, err)

	first, err := engine.Materialize(ctx, tip)
	require.NoError(t, err)
	second, err := engine.Materialize(ctx, tip)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	fa, err := first.Fingerprint()
	require.NoError(t, err)
	fb, err := second.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestResume_MatchesFullReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLayerStore()
	handler := &countingHandler{}
	engine := materialize.New(store, materialize.WithHandler(handler))

	root, err := store.Append(ctx, domain.NoLayer, water())
	require.NoError(t, err)
	mid := root
	for i := 0; i < 4; i++ {
		mid, err = store.Append(ctx, mid, shiftX())
		require.NoError(t, err)
	}
	tip := mid
	for i := 0; i < 2; i++ {
		tip, err = store.Append(ctx, tip, shiftX())
		require.NoError(t, err)
	}

	cached, err := engine.Materialize(ctx, mid)
	require.NoError(t, err)
	full, err := engine.Materialize(ctx, tip)
	require.NoError(t, err)

	handler.applied.Store(0)
	resumed, err := engine.Resume(ctx, tip, func(id domain.LayerID) (*domain.Structure, bool) {
		if id == mid {
			return cached, true
		}
		return nil, false
	})
	require.NoError(t, err)
	assert.Equal(t, full, resumed)
	assert.Equal(t, int64(2), handler.applied.Load(), "only layers below the cached ancestor are replayed")

	assert.InDelta(t, 4.0, cached.Atoms[0].Position[0], 1e-12, "the cached ancestor is not mutated")
}

func TestMaterialize_SelectorErrorNamesLayer(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLayerStore()
	engine := materialize.New(store)

	root, err := store.Append(ctx, domain.NoLayer, water())
	require.NoError(t, err)
	bad, err := store.Append(ctx, root, domain.SetCenter{Select: domain.SelectID("N1")})
	require.NoError(t, err)

	s, err := engine.Materialize(ctx, bad)
	assert.Nil(t, s, "no partial structure is returned")
	require.ErrorIs(t, err, domain.ErrSelectorResolution)

	var selErr *domain.SelectorResolutionError
	require.ErrorAs(t, err, &selErr)
	assert.Contains(t, selErr.Reason, "N1")
	assert.Contains(t, err.Error(), "layer "+bad.String())
}

func TestMaterialize_UnknownLayer(t *testing.T) {
	engine := materialize.New(memory.NewLayerStore())
	_, err := engine.Materialize(context.Background(), domain.LayerID(5))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMaterialize_Cancelled(t *testing.T) {
	store := memory.NewLayerStore()
	engine := materialize.New(store)
	root, err := store.Append(context.Background(), domain.NoLayer, water())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Replay(ctx, nil, []domain.Layer{{ID: root, Operation: water()}})
	assert.ErrorIs(t, err, context.Canceled)
}
