package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/strata/pkg/domain"
)

// InspectOptions selects what to read from the layer store.
type InspectOptions struct {
	GlobalOptions
	DBPath string
	// What is one of "layer", "chain", "children" or "structure".
	What string
	ID   string
}

// Inspect prints a layer, its chain, its children or its materialized
// structure as JSON.
func Inspect(ctx context.Context, opts InspectOptions, out io.Writer) error {
	id, err := domain.ParseLayerID(opts.ID)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.GlobalOptions, opts.DBPath, 0)
	if err != nil {
		return err
	}
	cfg.Runs.Backend = "memory"

	ws, err := openWorkspace(ctx, cfg, factoryOptions{Logger: createLogger(opts.GlobalOptions)})
	if err != nil {
		return err
	}
	defer ws.Close()

	var v any
	switch opts.What {
	case "layer":
		v, err = ws.Engine.Layer(ctx, id)
	case "chain":
		v, err = ws.Engine.Chain(ctx, id)
	case "children":
		var kids []domain.LayerID
		kids, err = ws.Engine.Children(ctx, id)
		if kids == nil {
			kids = []domain.LayerID{}
		}
		v = kids
	case "structure":
		v, err = ws.Engine.Materialize(ctx, id)
	default:
		return fmt.Errorf("unknown inspect target %q", opts.What)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
