package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/session"
	"gopkg.in/yaml.v3"
)

// Runner executes one step. It reads its options through rc.Decode and
// changes the run only through rc.
type Runner func(ctx context.Context, rc *RunContext) error

// Machine executes workflow definitions. A Machine is safe for concurrent
// use; each run is executed sequentially on the caller's goroutine.
type Machine struct {
	store    ports.LayerStore
	cache    ports.Materializer
	loader   ports.SourceLoader
	calc     ports.CalculationRunner
	sink     ports.ExportSink
	sessions *session.Manager
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	runners  map[string]Runner
	now      func() time.Time
}

// Option configures the Machine.
type Option func(*Machine)

// WithSourceLoader sets where load steps, base files and fragments are read from.
func WithSourceLoader(loader ports.SourceLoader) Option {
	return func(m *Machine) {
		m.loader = loader
	}
}

// WithCalculationRunner enables the Calculation runner.
func WithCalculationRunner(calc ports.CalculationRunner) Option {
	return func(m *Machine) {
		m.calc = calc
	}
}

// WithExportSink enables the Output runner.
func WithExportSink(sink ports.ExportSink) Option {
	return func(m *Machine) {
		m.sink = sink
	}
}

// WithSessions persists run state after every step and serializes runs
// sharing an ID.
func WithSessions(sessions *session.Manager) Option {
	return func(m *Machine) {
		m.sessions = sessions
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = m.hooks.Merge(hooks)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithRunner registers an additional runner or replaces a built-in one.
func WithRunner(name string, r Runner) Option {
	return func(m *Machine) {
		m.runners[name] = r
	}
}

// New creates a Machine appending to store and validating through cache.
func New(store ports.LayerStore, cache ports.Materializer, opts ...Option) *Machine {
	m := &Machine{
		store:   store,
		cache:   cache,
		logger:  logging.NewNop(),
		runners: builtinRunners(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunOptions selects the run to execute.
type RunOptions struct {
	// RunID identifies the run in the run store. Generated when empty.
	RunID string
	// Resume continues a persisted run from its next step.
	Resume bool
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "run-" + hex.EncodeToString(b[:])
}

// Run executes def. The returned state is valid even when err is not nil,
// except when the workflow could not be expanded or resumed.
func (m *Machine) Run(ctx context.Context, def *Definition, opts RunOptions) (*domain.RunState, error) {
	runID := opts.RunID
	if runID == "" {
		runID = NewRunID()
	}
	if m.sessions == nil {
		if opts.Resume {
			return nil, fmt.Errorf("resume requires a run store")
		}
		return m.run(ctx, def, runID, nil)
	}

	var (
		state  *domain.RunState
		runErr error
	)
	err := m.sessions.WithLock(ctx, runID, func(ctx context.Context) error {
		var prior *domain.RunState
		if opts.Resume {
			loaded, err := m.sessions.Store().Load(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to resume run %s: %w", runID, err)
			}
			prior = loaded
		}
		state, runErr = m.run(ctx, def, runID, prior)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, runErr
}

func (m *Machine) run(ctx context.Context, def *Definition, runID string, state *domain.RunState) (*domain.RunState, error) {
	steps, err := Expand(ctx, def, m.loader)
	if err != nil {
		return nil, err
	}
	logger := m.logger.With("run_id", runID)

	if state == nil {
		state = domain.NewRunState(runID)
		state.Title = def.Title
		if def.Base != nil {
			if err := m.seed(ctx, def, state); err != nil {
				state.Status = domain.StatusFailed
				state.Error = err.Error()
				m.persist(ctx, state)
				return state, err
			}
		}
	} else {
		if state.Step > len(steps) {
			return state, fmt.Errorf("run %s is at step %d but the workflow has %d steps", runID, state.Step, len(steps))
		}
		logger.Info("resuming run", "step", state.Step, "status", state.Status)
		state.Error = ""
	}

	for i := state.Step; i < len(steps); i++ {
		if err := ctx.Err(); err != nil {
			state.Status = domain.StatusFailed
			state.Error = err.Error()
			m.persist(ctx, state)
			logger.Warn("run cancelled", "step", i)
			return state, err
		}
		if err := m.step(ctx, state, i, steps[i]); err != nil {
			state.Status = domain.StatusFailed
			state.Error = err.Error()
			m.persist(ctx, state)
			logger.Error("step failed", "step", i, "run", steps[i].Run, "err", err)
			return state, err
		}
		state.Step = i + 1
		if err := m.persist(ctx, state); err != nil {
			return state, err
		}
	}

	state.Status = domain.StatusCompleted
	if err := m.persist(ctx, state); err != nil {
		return state, err
	}
	logger.Info("run completed", "steps", len(steps), "tips", len(state.Tips))
	return state, nil
}

// step executes one step. A failed step leaves the model bindings as they
// were before it started, so that resuming re-runs it from a clean tip.
// Layers it appended stay in the store unreferenced. Cancellation of ctx is
// not observed inside the step.
func (m *Machine) step(ctx context.Context, state *domain.RunState, i int, st Step) (err error) {
	tips, active := maps.Clone(state.Tips), state.Active
	defer func() {
		if err != nil {
			state.Tips, state.Active = tips, active
		}
	}()
	ctx = context.WithoutCancel(ctx)

	state.Step = i
	state.Status = domain.StatusRunning
	if st.Model != "" {
		state.Active = st.Model
	}

	ev := &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: m.now(), Type: domain.EventStepStart, RunID: state.RunID},
		Index:     i,
		Run:       st.Run,
		Model:     state.Active,
	}
	if m.hooks.OnStepStart != nil {
		m.hooks.OnStepStart(ctx, ev)
	}
	defer func() {
		if err != nil {
			err = &domain.StepError{Index: i, Run: st.Run, Err: err}
		}
		if m.hooks.OnStepEnd != nil {
			end := *ev
			end.Type = domain.EventStepEnd
			end.Duration = m.now().Sub(ev.Timestamp)
			end.Err = err
			end.Timestamp = m.now()
			m.hooks.OnStepEnd(ctx, &end)
		}
	}()

	if st.From != "" {
		ck, ok := state.Checkpoints[st.From]
		if !ok {
			return &domain.NotFoundError{Kind: "checkpoint", Name: st.From}
		}
		state.Tips[state.Active] = ck.Layer
		state.Status = domain.StatusBranched
	}

	runner, ok := m.runners[st.Run]
	if !ok {
		return &domain.NotFoundError{Kind: "runner", Name: st.Run}
	}
	rc := &RunContext{RunID: state.RunID, Index: i, Step: st, State: state, m: m}
	m.logger.Debug("step start", "run_id", state.RunID, "step", i, "run", st.Run, "model", state.Active)
	if err := runner(ctx, rc); err != nil {
		return err
	}
	if st.Name != "" {
		return rc.Checkpoint(ctx, st.Name)
	}
	return nil
}

// seed appends the base structure as the root of the default model and
// records it as the "base" checkpoint.
func (m *Machine) seed(ctx context.Context, def *Definition, state *domain.RunState) error {
	raw := def.Base
	if ref, ok := raw.(string); ok {
		if m.loader == nil {
			return fmt.Errorf("base %q requires a source loader", ref)
		}
		data, _, err := m.loader.Read(ctx, ref, def.Source)
		if err != nil {
			return fmt.Errorf("failed to read base: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse base %s: %w", ref, err)
		}
	} else {
		params := def.Params
		if params == nil {
			params = map[string]any{}
		}
		sub, err := substitute(raw, params, def.Source)
		if err != nil {
			return err
		}
		raw = sub
	}
	base, err := DecodeStructure(raw)
	if err != nil {
		return err
	}
	if base.Title == "" {
		base.Title = def.Title
	}

	state.Active = domain.DefaultModel
	rc := &RunContext{RunID: state.RunID, Index: -1, State: state, m: m}
	if _, err := rc.Advance(ctx, domain.Fill{Structure: *base}); err != nil {
		return fmt.Errorf("failed to seed base: %w", err)
	}
	return rc.Checkpoint(ctx, "base")
}

func (m *Machine) persist(ctx context.Context, state *domain.RunState) error {
	state.UpdatedAt = m.now().UTC()
	if m.sessions == nil {
		return nil
	}
	if err := m.sessions.Store().Save(context.WithoutCancel(ctx), state.RunID, state.Clone()); err != nil {
		m.logger.Error("failed to persist run state", "run_id", state.RunID, "err", err)
		return fmt.Errorf("failed to persist run state: %w", err)
	}
	return nil
}

// RunContext is the view of a run handed to a Runner.
type RunContext struct {
	RunID string
	Index int
	Step  Step
	State *domain.RunState

	m *Machine
}

// Decode maps the step's with block onto out.
func (rc *RunContext) Decode(out any) error {
	if err := DecodeOptions(rc.Step.With, out); err != nil {
		return fmt.Errorf("invalid options for %s: %w", rc.Step.Run, err)
	}
	return nil
}

// Tip returns the head of the active model, or domain.NoLayer.
func (rc *RunContext) Tip() domain.LayerID {
	id, _ := rc.State.Tip()
	return id
}

// Structure materializes the tip of model.
func (rc *RunContext) Structure(ctx context.Context, model string) (*domain.Structure, error) {
	id, ok := rc.State.Tips[model]
	if !ok || id.IsRoot() {
		return nil, &domain.NotFoundError{Kind: "model", Name: model}
	}
	return rc.m.cache.GetOrMaterialize(ctx, id)
}

// Extend appends op under parent and validates the new layer by
// materializing it. The id is returned even when validation fails, since
// the layer is already durable.
func (rc *RunContext) Extend(ctx context.Context, parent domain.LayerID, op domain.Operation) (domain.LayerID, error) {
	id, err := rc.m.store.Append(ctx, parent, op)
	if err != nil {
		return domain.NoLayer, fmt.Errorf("failed to append %s: %w", op.Kind(), err)
	}
	if rc.m.hooks.OnLayerAppended != nil {
		rc.m.hooks.OnLayerAppended(ctx, &domain.LayerEvent{
			EventBase: domain.EventBase{Timestamp: rc.m.now(), Type: domain.EventLayerAppended, RunID: rc.RunID},
			Layer:     id,
			Parent:    parent,
			Kind:      op.Kind(),
			Model:     rc.State.Active,
		})
	}
	if _, err := rc.m.cache.GetOrMaterialize(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}

// Advance extends the active tip with op and moves the tip onto the new
// layer once it validates.
func (rc *RunContext) Advance(ctx context.Context, op domain.Operation) (domain.LayerID, error) {
	id, err := rc.Extend(ctx, rc.Tip(), op)
	if err != nil {
		return id, err
	}
	rc.State.Tips[rc.State.Active] = id
	return id, nil
}

// Checkpoint records the active tip under name. Names are never rebound.
func (rc *RunContext) Checkpoint(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("checkpoint name is required")
	}
	if _, exists := rc.State.Checkpoints[name]; exists {
		return &domain.DuplicateNameError{Kind: "checkpoint", Name: name}
	}
	tip, ok := rc.State.Tip()
	if !ok {
		return &domain.NotFoundError{Kind: "model", Name: rc.State.Active}
	}
	ck := domain.Checkpoint{
		Name:      name,
		Layer:     tip,
		Model:     rc.State.Active,
		Step:      rc.Index,
		CreatedAt: rc.m.now().UTC(),
	}
	rc.State.Checkpoints[name] = ck
	if rc.m.hooks.OnCheckpoint != nil {
		rc.m.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			EventBase:  domain.EventBase{Timestamp: ck.CreatedAt, Type: domain.EventCheckpoint, RunID: rc.RunID},
			Checkpoint: ck,
		})
	}
	return nil
}
