package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Overlay contains run state to visualize on the layer tree.
type Overlay struct {
	// Tips maps model names to their head layer.
	Tips map[string]domain.LayerID
	// Checkpoints maps checkpoint names to their layer.
	Checkpoints map[string]domain.LayerID
}

// FromRun builds an overlay from a run's tips and checkpoints.
func FromRun(state *domain.RunState) *Overlay {
	o := &Overlay{
		Tips:        maps.Clone(state.Tips),
		Checkpoints: make(map[string]domain.LayerID, len(state.Checkpoints)),
	}
	for name, ck := range state.Checkpoints {
		o.Checkpoints[name] = ck.Layer
	}
	return o
}

// Heads lists every layer the overlay points at, without duplicates.
func (o *Overlay) Heads() []domain.LayerID {
	var ids []domain.LayerID
	for _, id := range o.Tips {
		ids = append(ids, id)
	}
	for _, id := range o.Checkpoints {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// CollectLayers returns the union of the chains behind heads, ordered by id.
func CollectLayers(ctx context.Context, store ports.LayerStore, heads []domain.LayerID) ([]domain.Layer, error) {
	seen := map[domain.LayerID]domain.Layer{}
	for _, h := range heads {
		if _, ok := seen[h]; ok || h.IsRoot() {
			continue
		}
		chain, err := store.Chain(ctx, h)
		if err != nil {
			return nil, err
		}
		for _, l := range chain {
			seen[l.ID] = l
		}
	}
	ids := slices.Sorted(maps.Keys(seen))
	out := make([]domain.Layer, len(ids))
	for i, id := range ids {
		out[i] = seen[id]
	}
	return out, nil
}

// GenerateMermaid produces a Mermaid flowchart of a layer tree.
// It applies semantic styling:
// - Root: ((Circle))
// - Splice: [[Subroutine]]
// - Default: [Rectangle]
// Tips and checkpoints from the overlay are labelled and styled.
func GenerateMermaid(layers []domain.Layer, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var tips, checkpoints map[domain.LayerID][]string
	if overlay != nil {
		tips = invert(overlay.Tips)
		checkpoints = invert(overlay.Checkpoints)
	}

	for _, l := range layers {
		id := nodeID(l.ID)
		opener, closer := "[", "]"
		switch {
		case l.Parent == domain.NoLayer:
			opener, closer = "((", "))"
		case l.Operation != nil && l.Operation.Kind() == domain.KindSplice:
			opener, closer = "[[", "]]"
		}

		label := fmt.Sprintf("#%d", l.ID)
		if l.Operation != nil {
			label += " " + string(l.Operation.Kind())
		}
		for _, name := range checkpoints[l.ID] {
			label += "<br/>@" + escape(name)
		}
		for _, name := range tips[l.ID] {
			label += "<br/>" + escape(name)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", id, opener, label, closer)
		if l.Parent != domain.NoLayer {
			fmt.Fprintf(&sb, "    %s --> %s\n", nodeID(l.Parent), id)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef checkpoint fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef tip fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, id := range slices.Sorted(maps.Keys(checkpoints)) {
			fmt.Fprintf(&sb, "    class %s checkpoint;\n", nodeID(id))
		}
		for _, id := range slices.Sorted(maps.Keys(tips)) {
			fmt.Fprintf(&sb, "    class %s tip;\n", nodeID(id))
		}
	}

	return sb.String()
}

func invert(m map[string]domain.LayerID) map[domain.LayerID][]string {
	out := make(map[domain.LayerID][]string, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out[m[name]] = append(out[m[name]], name)
	}
	return out
}

func nodeID(id domain.LayerID) string { return fmt.Sprintf("L%d", id) }

// escape keeps names from closing the quoted Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
