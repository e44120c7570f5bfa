package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/process"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/adapters/s3"
	"github.com/aretw0/strata/pkg/adapters/sqlite"
	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/persistence/middleware"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/registry"
)

// Workspace is an engine wired from configuration, with the resources it
// opened.
type Workspace struct {
	Engine *strata.Engine
	Layers *sqlite.Store
	Runs   ports.RunStore

	closers []func() error
}

// Close closes the engine and every backend opened for it.
func (w *Workspace) Close() error {
	errs := []error{w.Engine.Close()}
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = append(errs, w.closers[i]())
	}
	return errors.Join(errs...)
}

// factoryOptions are the parts of a command invocation the factory needs
// beyond the configuration file.
type factoryOptions struct {
	Dir        string
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Hooks      domain.LifecycleHooks
}

// openWorkspace initializes an engine with standard CLI conventions.
func openWorkspace(ctx context.Context, cfg config.Config, opts factoryOptions) (ws *Workspace, err error) {
	logger := opts.Logger
	ws = &Workspace{}
	defer func() {
		if err != nil {
			for i := len(ws.closers) - 1; i >= 0; i-- {
				_ = ws.closers[i]()
			}
		}
	}()

	// 1. Layers
	layers, err := sqlite.Open(cfg.Store.Path, sqlite.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open layer store: %w", err)
	}
	ws.Layers = layers
	ws.closers = append(ws.closers, layers.Close)

	engineOpts := []strata.Option{
		strata.WithLogger(logger),
		strata.WithLayerStore(layers),
		strata.WithCacheOptions(cache.Options{Size: cfg.Cache.Size, Verify: cfg.Cache.Verify}),
		strata.WithLifecycleHooks(opts.Hooks),
	}
	if opts.Registerer != nil {
		engineOpts = append(engineOpts, strata.WithRegisterer(opts.Registerer))
	}

	// 2. Run state
	runs, locker, err := openRuns(cfg.Runs, layers, ws)
	if err != nil {
		return nil, err
	}
	ws.Runs = runs
	engineOpts = append(engineOpts, strata.WithRunStore(runs))
	if locker != nil {
		engineOpts = append(engineOpts, strata.WithLocker(locker))
	}

	// 3. Exports
	sink, err := openSink(ctx, cfg.Export, opts.Dir, logger)
	if err != nil {
		return nil, err
	}
	engineOpts = append(engineOpts, strata.WithExportSink(sink))

	// 4. Calculations: in-process tools first, then external programs.
	// A tools file next to the workflow wins over the one in the working
	// directory.
	toolsPath := cfg.Tools.File
	if !filepath.IsAbs(toolsPath) && opts.Dir != "" {
		if candidate := filepath.Join(opts.Dir, toolsPath); fileExists(candidate) {
			toolsPath = candidate
		}
	}
	tools, err := process.LoadTools(toolsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tools: %w", err)
	}
	programs := process.NewRunner(
		process.WithRegistry(tools),
		process.WithInlineExecution(cfg.Tools.AllowInline),
		process.WithDefaultTimeout(cfg.Tools.Timeout),
		process.WithBaseDir(opts.Dir),
		process.WithLogger(logger),
	)
	engineOpts = append(engineOpts, strata.WithCalculationRunner(
		registry.Builtins(registry.WithFallback(programs)),
	))

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	eng, err := strata.New(dir, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	ws.Engine = eng
	return ws, nil
}

func openRuns(cfg config.Runs, layers *sqlite.Store, ws *Workspace) (ports.RunStore, ports.DistributedLocker, error) {
	var (
		runs   ports.RunStore
		locker ports.DistributedLocker
	)
	switch cfg.Backend {
	case "memory":
		runs = memory.NewStore()
	case "sqlite":
		runs = layers.Runs()
	case "redis":
		store := redis.New(cfg.RedisAddr, "", 0, redis.WithPrefix(cfg.RedisPrefix), redis.WithTTL(cfg.TTL))
		ws.closers = append(ws.closers, store.Close)
		runs = store
		locker = redis.NewLocker(store.Client(), cfg.RedisPrefix)
	default:
		runs = file.New(cfg.Dir)
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, nil, err
	}
	if key != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, nil, err
		}
		runs = middleware.Chain(runs, mw)
	}
	return runs, locker, nil
}

func openSink(ctx context.Context, cfg config.Export, dir string, logger *slog.Logger) (ports.ExportSink, error) {
	if cfg.Backend == "s3" {
		sink, err := s3.New(ctx, s3.Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		}, s3.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 sink: %w", err)
		}
		return sink, nil
	}
	out := cfg.Dir
	if !filepath.IsAbs(out) && dir != "" {
		out = filepath.Join(dir, out)
	}
	return file.NewSink(out), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
