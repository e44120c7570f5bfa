package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/presentation/graph"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	layers := []domain.Layer{
		{ID: 1, Operation: domain.Fill{}},
		{ID: 2, Parent: 1, Operation: domain.Translation{Select: domain.SelectAll()}},
		{ID: 3, Parent: 1, Operation: domain.Splice{}},
	}

	tests := []struct {
		name     string
		overlay  *graph.Overlay
		contains []string
		absent   []string
	}{
		{
			name: "Shapes And Edges",
			contains: []string{
				"graph TD\n",
				`L1(("#1 Fill"))`,
				`L2["#2 Translation"]`,
				`L3[["#3 Splice"]]`,
				"L1 --> L2",
				"L1 --> L3",
			},
			absent: []string{"classDef"},
		},
		{
			name: "Overlay",
			overlay: &graph.Overlay{
				Tips:        map[string]domain.LayerID{"default": 2, "default_methyl": 3, "other": 3},
				Checkpoints: map[string]domain.LayerID{"base": 1, `say "hi"`: 2},
			},
			contains: []string{
				`L1(("#1 Fill<br/>@base"))`,
				`L2["#2 Translation<br/>@say 'hi'<br/>default"]`,
				`L3[["#3 Splice<br/>default_methyl<br/>other"]]`,
				"class L1 checkpoint;",
				"class L2 checkpoint;",
				"class L2 tip;",
				"class L3 tip;",
			},
			absent: []string{"class L1 tip;"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(layers, tt.overlay)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.absent {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}

func TestCollectLayers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLayerStore()
	shift := domain.Translation{Select: domain.SelectAll()}
	root, err := store.Append(ctx, domain.NoLayer, domain.Fill{})
	require.NoError(t, err)
	a, err := store.Append(ctx, root, shift)
	require.NoError(t, err)
	_, err = store.Append(ctx, root, shift) // unreferenced sibling
	require.NoError(t, err)
	a2, err := store.Append(ctx, a, shift)
	require.NoError(t, err)

	state := domain.NewRunState("r")
	state.Tips["default"] = a2
	state.Checkpoints["base"] = domain.Checkpoint{Name: "base", Layer: root}
	state.Checkpoints["mid"] = domain.Checkpoint{Name: "mid", Layer: a}

	overlay := graph.FromRun(state)
	assert.Equal(t, []domain.LayerID{root, a, a2}, overlay.Heads())

	layers, err := graph.CollectLayers(ctx, store, overlay.Heads())
	require.NoError(t, err)
	ids := make([]domain.LayerID, len(layers))
	for i, l := range layers {
		ids[i] = l.ID
	}
	assert.Equal(t, []domain.LayerID{root, a, a2}, ids)

	out := graph.GenerateMermaid(layers, overlay)
	assert.Equal(t, 2, strings.Count(out, "-->"))

	_, err = graph.CollectLayers(ctx, store, []domain.LayerID{99})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
