package cli

import (
	"context"
	"io"

	"github.com/aretw0/strata/internal/presentation/graph"
)

// GraphOptions selects the run whose layer tree is rendered.
type GraphOptions struct {
	GlobalOptions
	DBPath string
	RunID  string
}

// Graph prints the layers reachable from a run's tips and checkpoints as a
// Mermaid flowchart.
func Graph(ctx context.Context, opts GraphOptions, out io.Writer) error {
	cfg, err := loadConfig(opts.GlobalOptions, opts.DBPath, 0)
	if err != nil {
		return err
	}
	ws, err := openWorkspace(ctx, cfg, factoryOptions{Logger: createLogger(opts.GlobalOptions)})
	if err != nil {
		return err
	}
	defer ws.Close()

	state, err := ws.Engine.RunState(ctx, opts.RunID)
	if err != nil {
		return err
	}
	overlay := graph.FromRun(state)
	layers, err := graph.CollectLayers(ctx, ws.Engine.Store(), overlay.Heads())
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, graph.GenerateMermaid(layers, overlay))
	return err
}
