// Package workflow executes declarative workflow files against the layer store.
//
// A workflow is an ordered list of steps. Each step names a runner and
// optionally restores a tip from a checkpoint (from), switches the active
// model (model) and records a checkpoint once it succeeds (name). Steps with
// load are template inclusions; they are expanded before anything runs.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/strata/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Definition is a parsed workflow file.
type Definition struct {
	Title string `yaml:"title,omitempty"`
	// Base is either an inline structure or a reference to a structure file.
	Base   any            `yaml:"base,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`
	Steps  []Step         `yaml:"steps"`

	// Source is the canonical name the definition was read from.
	Source string `yaml:"-"`
}

// Step is one entry of a workflow. Exactly one of Run or Load is set.
type Step struct {
	Name   string         `yaml:"name,omitempty"`
	From   string         `yaml:"from,omitempty"`
	Model  string         `yaml:"model,omitempty"`
	Run    string         `yaml:"run,omitempty"`
	With   any            `yaml:"with,omitempty"`
	Load   string         `yaml:"load,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`

	// Source is the file the step was expanded from.
	Source string `yaml:"-"`
}

// ParseDefinition decodes a workflow document. Unknown fields are rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}
	for i, st := range def.Steps {
		if err := st.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return &def, nil
}

// LoadDefinition reads and parses the workflow behind ref.
func LoadDefinition(ctx context.Context, loader ports.SourceLoader, ref string) (*Definition, error) {
	data, name, err := loader.Read(ctx, ref, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	def.Source = name
	return def, nil
}

func (s Step) validate() error {
	switch {
	case s.Run == "" && s.Load == "":
		return fmt.Errorf("either run or load is required")
	case s.Run != "" && s.Load != "":
		return fmt.Errorf("run and load are mutually exclusive")
	case s.Load == "" && len(s.Params) > 0:
		return fmt.Errorf("params are only valid on load steps")
	}
	return nil
}
