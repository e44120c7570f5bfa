package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/workflow"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	GlobalOptions
	WorkflowPath string
	RunID        string
	Resume       bool
	// Overrides; zero values keep the configured value.
	DBPath    string
	CacheSize int
	JSON      bool
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts GlobalOptions, dbPath string, cacheSize int) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if cacheSize > 0 {
		cfg.Cache.Size = cacheSize
	}
	return cfg, nil
}

// Execute runs a workflow file and prints the resulting run state.
func Execute(ctx context.Context, opts RunOptions, out io.Writer) error {
	cfg, err := loadConfig(opts.GlobalOptions, opts.DBPath, opts.CacheSize)
	if err != nil {
		return err
	}
	logger := createLogger(opts.GlobalOptions)

	dir := filepath.Dir(opts.WorkflowPath)
	ws, err := openWorkspace(ctx, cfg, factoryOptions{
		Dir:    dir,
		Logger: logger,
		Hooks:  observability.LoggingHooks(logger),
	})
	if err != nil {
		return err
	}
	defer ws.Close()

	runID := opts.RunID
	if runID == "" {
		runID = workflow.NewRunID()
	}
	state, runErr := ws.Engine.RunFile(ctx, filepath.Base(opts.WorkflowPath), workflow.RunOptions{
		RunID:  runID,
		Resume: opts.Resume,
	})
	if state != nil {
		if err := printState(out, state, opts.JSON); err != nil {
			return err
		}
	}
	if runErr != nil && state != nil && !isInterrupted(runErr) && !opts.JSON {
		printSystemMessage(out, "Run %s failed; resume with --run-id %s --resume", runID, runID)
	}
	return handleExecutionError(runErr)
}

func printState(w io.Writer, state *domain.RunState, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	r := tui.NewRenderer(w)
	printSystemMessage(w, "Run %s %s after %d steps.", state.RunID, r.Status(state.Status), state.Step)
	for _, name := range sortedKeys(state.Tips) {
		marker := " "
		if name == state.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s tip %-24s %s\n", marker, name, r.Faint(fmt.Sprintf("layer %d", state.Tips[name])))
	}
	for _, name := range sortedKeys(state.Checkpoints) {
		fmt.Fprintf(w, "  checkpoint %-17s %s\n", name, r.Faint(fmt.Sprintf("layer %d", state.Checkpoints[name].Layer)))
	}
	if state.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error(state.Error))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
