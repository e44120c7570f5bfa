// Package validator checks workflow definitions without touching a layer
// store.
package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/workflow"
)

// Issue is one problem found in an expanded step. Step is -1 for problems
// with the workflow as a whole.
type Issue struct {
	Step    int
	Run     string
	Message string
}

func (i Issue) String() string {
	if i.Step < 0 {
		return i.Message
	}
	return fmt.Sprintf("step %d (%s): %s", i.Step, i.Run, i.Message)
}

// ValidateWorkflow expands def and walks its steps the way the machine
// would, tracking checkpoints and models by name. extraRunners names custom
// runners registered on the engine.
func ValidateWorkflow(ctx context.Context, def *workflow.Definition, loader ports.SourceLoader, extraRunners ...string) error {
	issues, err := Lint(ctx, def, loader, extraRunners...)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		lines := make([]string, len(issues))
		for i, is := range issues {
			lines[i] = is.String()
		}
		return fmt.Errorf("found %d errors:\n- %s", len(issues), strings.Join(lines, "\n- "))
	}
	return nil
}

// Lint returns every issue found. The error is set only when the workflow
// cannot be expanded at all.
func Lint(ctx context.Context, def *workflow.Definition, loader ports.SourceLoader, extraRunners ...string) ([]Issue, error) {
	steps, err := workflow.Expand(ctx, def, loader)
	if err != nil {
		return nil, err
	}
	w := &walker{
		ctx:         ctx,
		loader:      loader,
		runners:     append(workflow.RunnerNames(), extraRunners...),
		checkpoints: map[string]bool{},
		models:      map[string]bool{},
		active:      domain.DefaultModel,
	}
	if def.Base == nil {
		w.report(-1, "", "workflow has no base structure")
	} else {
		w.checkpoints["base"] = true
		w.models[domain.DefaultModel] = true
	}
	for i, st := range steps {
		w.step(i, st)
	}
	return w.issues, nil
}

type walker struct {
	ctx         context.Context
	loader      ports.SourceLoader
	runners     []string
	checkpoints map[string]bool
	models      map[string]bool
	active      string
	issues      []Issue
}

func (w *walker) report(i int, run, format string, args ...any) {
	w.issues = append(w.issues, Issue{Step: i, Run: run, Message: fmt.Sprintf(format, args...)})
}

func (w *walker) step(i int, st workflow.Step) {
	if st.Model != "" {
		w.active = st.Model
	}
	if st.From != "" {
		if !w.checkpoints[st.From] {
			w.report(i, st.Run, "checkpoint %q is not defined by an earlier step", st.From)
		}
		w.models[w.active] = true
	}
	if !slices.Contains(w.runners, st.Run) {
		w.report(i, st.Run, "unknown runner")
		return
	}
	if !w.models[w.active] {
		w.report(i, st.Run, "model %q has no tip", w.active)
	}

	switch st.Run {
	case workflow.RunAppendLayers:
		w.appendLayers(i, st)
	case workflow.RunCheckPoint:
		var opts workflow.CheckPointOptions
		if s, ok := st.With.(string); ok {
			opts.Name = s
		} else if err := workflow.DecodeOptions(st.With, &opts); err != nil {
			w.report(i, st.Run, "%v", err)
		}
		w.checkpoint(i, st.Run, opts.Name)
	case workflow.RunRename:
		w.rename(i, st)
	case workflow.RunSubstituent:
		w.substituent(i, st)
	case workflow.RunCalculation:
		var opts workflow.CalculationOptions
		if err := workflow.DecodeOptions(st.With, &opts); err != nil {
			w.report(i, st.Run, "%v", err)
		} else if opts.Tool == "" && opts.Program == "" {
			w.report(i, st.Run, "either tool or program is required")
		}
	case workflow.RunOutput:
		if _, ok := st.With.(string); !ok {
			var opts workflow.OutputOptions
			if err := workflow.DecodeOptions(st.With, &opts); err != nil {
				w.report(i, st.Run, "%v", err)
			} else if opts.Model != "" && !w.models[opts.Model] {
				w.report(i, st.Run, "model %q has no tip", opts.Model)
			}
		}
	}
	if st.Name != "" {
		w.checkpoint(i, st.Run, st.Name)
	}
}

func (w *walker) checkpoint(i int, run, name string) {
	switch {
	case name == "":
		w.report(i, run, "checkpoint name is empty")
	case w.checkpoints[name]:
		w.report(i, run, "checkpoint %q is already defined", name)
	default:
		w.checkpoints[name] = true
	}
}

func (w *walker) appendLayers(i int, st workflow.Step) {
	var raw []any
	switch v := st.With.(type) {
	case []any:
		raw = v
	case map[string]any:
		raw = []any{v}
	default:
		w.report(i, st.Run, "expects a list of operations")
		return
	}
	if len(raw) == 0 {
		w.report(i, st.Run, "no operations")
	}
	for j, r := range raw {
		if _, err := workflow.DecodeOperation(r); err != nil {
			w.report(i, st.Run, "operation %d: %v", j, err)
		}
	}
}

func (w *walker) rename(i int, st workflow.Step) {
	var opts workflow.RenameOptions
	if s, ok := st.With.(string); ok {
		opts.To = s
	} else if err := workflow.DecodeOptions(st.With, &opts); err != nil {
		w.report(i, st.Run, "%v", err)
		return
	}
	if opts.From == "" {
		opts.From = w.active
	}
	if opts.To == "" {
		w.report(i, st.Run, "target name is required")
		return
	}
	if !w.models[opts.From] {
		w.report(i, st.Run, "model %q has no tip", opts.From)
	}
	delete(w.models, opts.From)
	w.models[opts.To] = true
	if w.active == opts.From {
		w.active = opts.To
	}
}

func (w *walker) substituent(i int, st workflow.Step) {
	var opts workflow.SubstituentOptions
	if err := workflow.DecodeOptions(st.With, &opts); err != nil {
		w.report(i, st.Run, "%v", err)
		return
	}
	if len(opts.Address) == 0 {
		w.report(i, st.Run, "at least one address is required")
	}
	if opts.FilePattern == "" {
		w.report(i, st.Run, "file_pattern is required")
		return
	}
	if w.loader == nil {
		return
	}
	names, err := w.loader.Glob(w.ctx, opts.FilePattern, st.Source)
	if err != nil {
		w.report(i, st.Run, "invalid file_pattern %q: %v", opts.FilePattern, err)
		return
	}
	if len(names) == 0 {
		w.report(i, st.Run, "no fragment matches %q", opts.FilePattern)
	}
	if len(names) > 1 {
		for _, name := range names {
			b := filepath.Base(name)
			w.models[w.active+"_"+strings.TrimSuffix(b, filepath.Ext(b))] = true
		}
	}
}
