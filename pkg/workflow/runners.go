package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Built-in runner names.
const (
	RunAppendLayers = "AppendLayers"
	RunRename       = "Rename"
	RunCheckPoint   = "CheckPoint"
	RunSubstituent  = "Substituent"
	RunCalculation  = "Calculation"
	RunOutput       = "Output"
)

func builtinRunners() map[string]Runner {
	return map[string]Runner{
		RunAppendLayers: appendLayers,
		RunRename:       rename,
		RunCheckPoint:   checkPoint,
		RunSubstituent:  substituent,
		RunCalculation:  calculation,
		RunOutput:       output,
	}
}

// RunnerNames lists the built-in runners in lexical order.
func RunnerNames() []string {
	return slices.Sorted(maps.Keys(builtinRunners()))
}

// appendLayers decodes every operation first, then appends them one by one.
// A layer that fails to materialize stays in the store; the machine puts
// the tip back where it was before the step.
func appendLayers(ctx context.Context, rc *RunContext) error {
	var raw []any
	switch v := rc.Step.With.(type) {
	case []any:
		raw = v
	case map[string]any:
		raw = []any{v}
	case nil:
		return fmt.Errorf("runner AppendLayers requires a list of operations")
	default:
		return fmt.Errorf("runner AppendLayers expects a list of operations, got %T", v)
	}
	ops := make([]domain.Operation, len(raw))
	for i, r := range raw {
		op, err := DecodeOperation(r)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		ops[i] = op
	}
	for i, op := range ops {
		if _, err := rc.Advance(ctx, op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op.Kind(), err)
		}
	}
	return nil
}

// rename moves a model name onto another name. Only the name-to-tip binding
// changes; no layer is created.
func rename(ctx context.Context, rc *RunContext) error {
	var opts RenameOptions
	if s, ok := rc.Step.With.(string); ok {
		opts.To = s
	} else if err := rc.Decode(&opts); err != nil {
		return err
	}
	if opts.From == "" {
		opts.From = rc.State.Active
	}
	if opts.To == "" {
		return fmt.Errorf("runner Rename requires a target name")
	}
	tips := rc.State.Tips
	tip, ok := tips[opts.From]
	if !ok {
		return &domain.NotFoundError{Kind: "model", Name: opts.From}
	}
	if existing, bound := tips[opts.To]; bound && existing != tip {
		return &domain.DuplicateNameError{Kind: "model", Name: opts.To}
	}
	if opts.To == opts.From {
		return nil
	}
	tips[opts.To] = tip
	delete(tips, opts.From)
	if rc.State.Active == opts.From {
		rc.State.Active = opts.To
	}
	return nil
}

func checkPoint(ctx context.Context, rc *RunContext) error {
	var opts CheckPointOptions
	if s, ok := rc.Step.With.(string); ok {
		opts.Name = s
	} else if err := rc.Decode(&opts); err != nil {
		return err
	}
	return rc.Checkpoint(ctx, opts.Name)
}

// substituent splices every fragment matching the file pattern onto the
// active tip, one Splice layer per address. A single fragment advances the
// active tip; several fragments each get a new model named
// "<active>_<fragment stem>" and the active tip stays where it was.
func substituent(ctx context.Context, rc *RunContext) error {
	var opts SubstituentOptions
	if err := rc.Decode(&opts); err != nil {
		return err
	}
	if opts.FilePattern == "" {
		return fmt.Errorf("runner Substituent requires file_pattern")
	}
	if len(opts.Address) == 0 {
		return fmt.Errorf("runner Substituent requires at least one address")
	}
	loader := rc.m.loader
	if loader == nil {
		return fmt.Errorf("runner Substituent requires a source loader")
	}
	base, ok := rc.State.Tip()
	if !ok {
		return &domain.NotFoundError{Kind: "model", Name: rc.State.Active}
	}

	names, err := loader.Glob(ctx, opts.FilePattern, rc.Step.Source)
	if err != nil {
		return fmt.Errorf("invalid file_pattern %q: %w", opts.FilePattern, err)
	}
	if len(names) == 0 {
		return &domain.NotFoundError{Kind: "fragment", Name: opts.FilePattern}
	}

	stem := func(name string) string {
		b := filepath.Base(name)
		return strings.TrimSuffix(b, filepath.Ext(b))
	}
	multi := len(names) > 1
	if multi {
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			model := rc.State.Active + "_" + stem(name)
			if _, bound := rc.State.Tips[model]; bound || seen[model] {
				return &domain.DuplicateNameError{Kind: "model", Name: model}
			}
			seen[model] = true
		}
	}

	for _, name := range names {
		frag, err := readFragment(ctx, loader, name)
		if err != nil {
			return err
		}
		prefix := opts.GroupPrefix
		if prefix == "" {
			prefix = stem(name) + "_"
		}
		tip := base
		for _, addr := range opts.Address {
			id, err := rc.Extend(ctx, tip, domain.Splice{
				Center:      addr.Center,
				Replace:     addr.Replace,
				Fragment:    *frag,
				GroupPrefix: prefix,
			})
			if err != nil {
				return fmt.Errorf("fragment %s: %w", name, err)
			}
			tip = id
		}
		if multi {
			rc.State.Tips[rc.State.Active+"_"+stem(name)] = tip
		} else {
			rc.State.Tips[rc.State.Active] = tip
		}
	}
	return nil
}

func readFragment(ctx context.Context, loader ports.SourceLoader, name string) (*domain.Structure, error) {
	data, _, err := loader.Read(ctx, name, "")
	if err != nil {
		return nil, err
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fragment %s: %w", name, err)
	}
	frag, err := DecodeStructure(raw)
	if err != nil {
		return nil, fmt.Errorf("fragment %s: %w", name, err)
	}
	return frag, nil
}

// calculation hands the active structure to the external program and
// appends the operation it returns. Failures are not retried.
func calculation(ctx context.Context, rc *RunContext) error {
	if rc.m.calc == nil {
		return fmt.Errorf("runner Calculation requires a calculation runner")
	}
	var opts CalculationOptions
	if err := rc.Decode(&opts); err != nil {
		return err
	}
	s, err := rc.Structure(ctx, rc.State.Active)
	if err != nil {
		return err
	}
	op, err := rc.m.calc.Calculate(ctx, ports.CalculationRequest{
		Tool:             opts.Tool,
		WorkingDirectory: opts.WorkingDirectory,
		Program:          opts.Program,
		Args:             opts.Args,
		Env:              opts.Env,
		InputFormat:      opts.InputFormat,
		InputFilename:    opts.InputFilename,
		OutputFormat:     opts.OutputFormat,
		OutputFilename:   opts.OutputFilename,
		Stdout:           opts.Stdout,
		Stderr:           opts.Stderr,
		Timeout:          opts.Timeout,
		Structure:        s,
	})
	if err != nil {
		return err
	}
	_, err = rc.Advance(ctx, op)
	return err
}

// output exports a materialized structure as indented JSON.
func output(ctx context.Context, rc *RunContext) error {
	if rc.m.sink == nil {
		return fmt.Errorf("runner Output requires an export sink")
	}
	var opts OutputOptions
	if s, ok := rc.Step.With.(string); ok {
		opts.Key = s
	} else if err := rc.Decode(&opts); err != nil {
		return err
	}
	model := opts.Model
	if model == "" {
		model = rc.State.Active
	}
	key := opts.Key
	if key == "" {
		key = rc.RunID + "/" + model + ".json"
	}
	s, err := rc.Structure(ctx, model)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}
	return rc.m.sink.Put(ctx, key, data, "application/json")
}
