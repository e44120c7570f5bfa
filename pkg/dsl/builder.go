package dsl

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/workflow"
)

// Builder accumulates a workflow definition.
type Builder struct {
	def  workflow.Definition
	errs []error
}

// New starts a definition with the given title.
func New(title string) *Builder {
	return &Builder{def: workflow.Definition{Title: title}}
}

// Base seeds the default model with s. The structure is copied.
func (b *Builder) Base(s *domain.Structure) *Builder {
	if s == nil {
		b.errs = append(b.errs, errors.New("base structure is nil"))
		return b
	}
	b.def.Base = s.Clone()
	return b
}

// BaseFile seeds the default model from a structure file read through the
// machine's source loader.
func (b *Builder) BaseFile(ref string) *Builder {
	b.def.Base = ref
	return b
}

// Param sets a template parameter visible to loaded templates.
func (b *Builder) Param(key string, value any) *Builder {
	if b.def.Params == nil {
		b.def.Params = map[string]any{}
	}
	b.def.Params[key] = value
	return b
}

// Step appends a step for any registered runner, including custom ones.
func (b *Builder) Step(run string, with any) *StepBuilder {
	return b.add(workflow.Step{Run: run, With: with})
}

// Append adds one layer per operation on the active model.
func (b *Builder) Append(ops ...domain.Operation) *StepBuilder {
	if len(ops) == 0 {
		b.errs = append(b.errs, errors.New("append step needs at least one operation"))
	}
	with := make([]any, len(ops))
	for i, op := range ops {
		with[i] = op
	}
	return b.Step(workflow.RunAppendLayers, with)
}

// CheckPoint records the active tip under name.
func (b *Builder) CheckPoint(name string) *StepBuilder {
	return b.Step(workflow.RunCheckPoint, workflow.CheckPointOptions{Name: name})
}

// Rename moves the active model to a new name.
func (b *Builder) Rename(to string) *StepBuilder {
	return b.Step(workflow.RunRename, workflow.RenameOptions{To: to})
}

// RenameModel moves model from onto to.
func (b *Builder) RenameModel(from, to string) *StepBuilder {
	return b.Step(workflow.RunRename, workflow.RenameOptions{From: from, To: to})
}

// Substituent splices the fragments matching pattern at every address.
func (b *Builder) Substituent(pattern string, addrs ...workflow.Address) *StepBuilder {
	return b.Step(workflow.RunSubstituent, workflow.SubstituentOptions{
		Address:     slices.Clone(addrs),
		FilePattern: pattern,
	})
}

// Calculate runs an external program on the active model.
func (b *Builder) Calculate(opts workflow.CalculationOptions) *StepBuilder {
	opts.Args = slices.Clone(opts.Args)
	opts.Env = maps.Clone(opts.Env)
	return b.Step(workflow.RunCalculation, opts)
}

// Output exports the active model under key. An empty key uses the
// default "<run id>/<model>.json".
func (b *Builder) Output(key string) *StepBuilder {
	return b.Step(workflow.RunOutput, workflow.OutputOptions{Key: key})
}

// Load expands a step template with the given parameters.
func (b *Builder) Load(ref string, params map[string]any) *StepBuilder {
	return b.add(workflow.Step{Load: ref, Params: maps.Clone(params)})
}

func (b *Builder) add(st workflow.Step) *StepBuilder {
	b.def.Steps = append(b.def.Steps, st)
	return &StepBuilder{Builder: b, index: len(b.def.Steps) - 1}
}

// Build returns the definition. The builder may keep being used; later
// changes do not affect returned definitions.
func (b *Builder) Build() (*workflow.Definition, error) {
	errs := slices.Clone(b.errs)
	if b.def.Base == nil {
		errs = append(errs, errors.New("workflow has no base structure"))
	}
	for i, st := range b.def.Steps {
		if st.Run == "" && st.Load == "" {
			errs = append(errs, fmt.Errorf("step %d: runner name is empty", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid workflow %q: %w", b.def.Title, err)
	}

	def := b.def
	def.Params = maps.Clone(b.def.Params)
	def.Steps = slices.Clone(b.def.Steps)
	if s, ok := def.Base.(*domain.Structure); ok {
		def.Base = s.Clone()
	}
	return &def, nil
}

// StepBuilder refines the most recently added step. It embeds the Builder
// so the chain can continue with the next step.
type StepBuilder struct {
	*Builder
	index int
}

func (s *StepBuilder) step() *workflow.Step { return &s.def.Steps[s.index] }

// Named checkpoints the step's result under name.
func (s *StepBuilder) Named(name string) *StepBuilder {
	s.step().Name = name
	return s
}

// From starts the step at a previously recorded checkpoint.
func (s *StepBuilder) From(checkpoint string) *StepBuilder {
	s.step().From = checkpoint
	return s
}

// Model makes model the active model before the step runs.
func (s *StepBuilder) Model(model string) *StepBuilder {
	s.step().Model = model
	return s
}
