package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/strata/pkg/domain"
)

// LoggingHooks logs every lifecycle event at debug level and failed steps at
// error level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_start", "run_id", e.RunID, "index", e.Index, "runner", e.Run, "model", e.Model)
		},
		OnStepEnd: func(ctx context.Context, e *domain.StepEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "step_failed", "run_id", e.RunID, "index", e.Index, "runner", e.Run, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "step_end", "run_id", e.RunID, "index", e.Index, "runner", e.Run, "duration", e.Duration)
		},
		OnLayerAppended: func(ctx context.Context, e *domain.LayerEvent) {
			logger.DebugContext(ctx, "layer_appended", "run_id", e.RunID, "layer", e.Layer, "parent", e.Parent, "kind", e.Kind, "model", e.Model)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			logger.InfoContext(ctx, "checkpoint", "run_id", e.RunID, "name", e.Checkpoint.Name, "layer", e.Checkpoint.Layer)
		},
	}
}
