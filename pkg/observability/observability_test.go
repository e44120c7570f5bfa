package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
)

func TestMetrics_Hooks(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	hooks := m.Hooks()
	hooks.OnStepEnd(ctx, &domain.StepEvent{Run: "append_layers", Duration: time.Millisecond})
	hooks.OnStepEnd(ctx, &domain.StepEvent{Run: "append_layers", Duration: time.Millisecond})
	hooks.OnStepEnd(ctx, &domain.StepEvent{Run: "calculation", Err: errors.New("boom")})
	hooks.OnLayerAppended(ctx, &domain.LayerEvent{Kind: domain.KindTranslation})
	hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{})

	n, err := testutil.GatherAndCount(reg, "strata_workflow_steps_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per runner and status")

	n, err = testutil.GatherAndCount(reg, "strata_workflow_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "strata_layers_appended_total", "strata_checkpoints_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)

	_, err = observability.NewMetrics(nil)
	assert.NoError(t, err)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	hooks := observability.LoggingHooks(logger)
	ctx := context.Background()

	hooks.OnStepStart(ctx, &domain.StepEvent{Index: 0, Run: "rename"})
	hooks.OnStepEnd(ctx, &domain.StepEvent{Index: 1, Run: "calculation", Err: errors.New("exit status 2")})
	hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{Checkpoint: domain.Checkpoint{Name: "opt", Layer: 4}})

	out := buf.String()
	assert.NotContains(t, out, "step_start")
	assert.Contains(t, out, "step_failed")
	assert.Contains(t, out, "exit status 2")
	assert.Contains(t, out, "name=opt")
}
