package strata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/sqlite"
	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/materialize"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/session"
	"github.com/aretw0/strata/pkg/workflow"
)

// Engine is the high-level entry point for the strata library. It owns a
// layer store, the materialization cache in front of it and a workflow
// machine appending to it.
type Engine struct {
	store     ports.LayerStore
	dbPath    string
	runs      ports.RunStore
	locker    ports.DistributedLocker
	loader    ports.SourceLoader
	calc      ports.CalculationRunner
	sink      ports.ExportSink
	hooks     domain.LifecycleHooks
	cacheOpts cache.Options
	reg       prometheus.Registerer
	runners   map[string]workflow.Runner
	logger    *slog.Logger

	cache    *cache.Cache
	sessions *session.Manager
	machine  *workflow.Machine
	closers  []func() error

	// Name is the base name of the workspace directory.
	Name string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLayerStore injects a layer store. The Engine does not close it.
func WithLayerStore(s ports.LayerStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithDatabase opens (or creates) an embedded SQLite layer store at path.
// The Engine closes it.
func WithDatabase(path string) Option {
	return func(e *Engine) {
		e.dbPath = path
	}
}

// WithRunStore persists run state, which enables resuming runs.
func WithRunStore(s ports.RunStore) Option {
	return func(e *Engine) {
		e.runs = s
	}
}

// WithLocker serializes runs sharing an ID across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithSourceLoader replaces the filesystem loader rooted at the workspace.
func WithSourceLoader(l ports.SourceLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithCalculationRunner enables calculation steps.
func WithCalculationRunner(c ports.CalculationRunner) Option {
	return func(e *Engine) {
		e.calc = c
	}
}

// WithExportSink sets where output steps write.
func WithExportSink(s ports.ExportSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithCacheOptions configures the materialization cache.
func WithCacheOptions(opts cache.Options) Option {
	return func(e *Engine) {
		e.cacheOpts = opts
	}
}

// WithRegisterer registers cache and workflow metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.reg = reg
	}
}

// WithRunner registers a custom workflow runner.
func WithRunner(name string, r workflow.Runner) Option {
	return func(e *Engine) {
		e.runners[name] = r
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes an Engine over the workspace at dir. Workflow files,
// base structures and fragments are resolved relative to dir unless a
// custom loader is provided, in which case dir may be empty. Without a
// layer store or database option layers are kept in memory.
func New(dir string, opts ...Option) (*Engine, error) {
	e := &Engine{runners: map[string]workflow.Runner{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	if e.loader == nil {
		if dir == "" {
			return nil, errors.New("dir is required when no custom loader is provided")
		}
		l, err := file.NewLoader(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open workspace: %w", err)
		}
		e.loader = l
		e.Name = filepath.Base(l.Root())
	} else if dir != "" {
		e.Name = filepath.Base(dir)
	}
	if e.Name != "" {
		e.logger = e.logger.With("workspace", e.Name)
	}

	if err := e.open(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open() error {
	switch {
	case e.store != nil:
	case e.dbPath != "":
		db, err := sqlite.Open(e.dbPath, sqlite.WithLogger(e.logger))
		if err != nil {
			return fmt.Errorf("failed to open layer database: %w", err)
		}
		e.store = db
		e.closers = append(e.closers, db.Close)
	default:
		e.store = memory.NewLayerStore()
	}

	cacheOpts := e.cacheOpts
	if cacheOpts.Registerer == nil {
		cacheOpts.Registerer = e.reg
	}
	if cacheOpts.Logger == nil {
		cacheOpts.Logger = e.logger
	}
	c, err := cache.New(materialize.New(e.store, materialize.WithLogger(e.logger)), cacheOpts)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	e.cache = c

	hooks := e.hooks
	if e.reg != nil {
		m, err := observability.NewMetrics(e.reg)
		if err != nil {
			return err
		}
		hooks = hooks.Merge(m.Hooks())
	}

	mopts := []workflow.Option{
		workflow.WithSourceLoader(e.loader),
		workflow.WithLifecycleHooks(hooks),
		workflow.WithLogger(e.logger),
	}
	if e.runs != nil {
		sopts := []session.Option{session.WithLogger(e.logger)}
		if e.locker != nil {
			sopts = append(sopts, session.WithLocker(e.locker))
		}
		e.sessions = session.NewManager(e.runs, sopts...)
		mopts = append(mopts, workflow.WithSessions(e.sessions))
	}
	if e.calc != nil {
		mopts = append(mopts, workflow.WithCalculationRunner(e.calc))
	}
	if e.sink != nil {
		mopts = append(mopts, workflow.WithExportSink(e.sink))
	}
	for name, r := range e.runners {
		mopts = append(mopts, workflow.WithRunner(name, r))
	}
	e.machine = workflow.New(e.store, e.cache, mopts...)
	return nil
}

// Run executes a parsed workflow.
func (e *Engine) Run(ctx context.Context, def *workflow.Definition, opts workflow.RunOptions) (*domain.RunState, error) {
	return e.machine.Run(ctx, def, opts)
}

// RunFile loads the workflow at ref through the source loader and runs it.
func (e *Engine) RunFile(ctx context.Context, ref string, opts workflow.RunOptions) (*domain.RunState, error) {
	def, err := workflow.LoadDefinition(ctx, e.loader, ref)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, def, opts)
}

// Materialize returns the structure at id. The result is owned by the caller.
func (e *Engine) Materialize(ctx context.Context, id domain.LayerID) (*domain.Structure, error) {
	return e.cache.GetOrMaterialize(ctx, id)
}

// Layer returns a single stored layer.
func (e *Engine) Layer(ctx context.Context, id domain.LayerID) (domain.Layer, error) {
	return e.store.Get(ctx, id)
}

// Children lists the layers directly derived from id.
func (e *Engine) Children(ctx context.Context, id domain.LayerID) ([]domain.LayerID, error) {
	return e.store.Children(ctx, id)
}

// Chain returns the layers from the root down to id.
func (e *Engine) Chain(ctx context.Context, id domain.LayerID) ([]domain.Layer, error) {
	return e.store.Chain(ctx, id)
}

// RunState loads a persisted run.
func (e *Engine) RunState(ctx context.Context, runID string) (*domain.RunState, error) {
	if e.runs == nil {
		return nil, fmt.Errorf("run %s: %w", runID, domain.ErrRunNotFound)
	}
	return e.runs.Load(ctx, runID)
}

// Store exposes the layer store.
func (e *Engine) Store() ports.LayerStore { return e.store }

// Cache exposes the materialization cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Runs exposes the run store, which is nil when runs are not persisted.
func (e *Engine) Runs() ports.RunStore { return e.runs }

// Close releases the resources opened by the Engine.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}
