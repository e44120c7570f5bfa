package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a layer, checkpoint, model or fragment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when a name is already bound to something else.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrSelectorResolution is returned when a selector matches nothing, is
	// ambiguous where one atom is required, or references an unknown id or group.
	ErrSelectorResolution = errors.New("selector resolution failed")

	// ErrExternalTool is returned when a calculation program fails.
	ErrExternalTool = errors.New("external tool failed")

	// ErrTemplateParameter is returned when a workflow template cannot be expanded.
	ErrTemplateParameter = errors.New("template parameter error")

	// ErrCacheCorruption is returned when a cached structure differs from a fresh replay.
	ErrCacheCorruption = errors.New("cache corruption")

	// ErrRunNotFound is returned when a run ID cannot be found in the run store.
	ErrRunNotFound = errors.New("run not found")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LayerNotFound builds a NotFoundError for a layer id.
func LayerNotFound(id LayerID) error {
	return &NotFoundError{Kind: "layer", Name: id.String()}
}

// DuplicateNameError reports a name that is already bound.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// SelectorResolutionError explains why a selector could not be resolved.
type SelectorResolutionError struct {
	Selector string
	Reason   string
}

func (e *SelectorResolutionError) Error() string {
	return fmt.Sprintf("selector %s: %s", e.Selector, e.Reason)
}

func (e *SelectorResolutionError) Unwrap() error { return ErrSelectorResolution }

// ExternalToolError carries the diagnostics of a failed calculation program.
type ExternalToolError struct {
	Program  string
	ExitCode int
	Stderr   string
	Reason   string
}

func (e *ExternalToolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("program %s: %s", e.Program, e.Reason)
	}
	msg := fmt.Sprintf("program %s exited with code %d", e.Program, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return ErrExternalTool }

// TemplateParameterError reports a missing or malformed template parameter.
type TemplateParameterError struct {
	Source string
	Key    string
	Reason string
}

func (e *TemplateParameterError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("template %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("template %s: parameter %q: %s", e.Source, e.Key, e.Reason)
}

func (e *TemplateParameterError) Unwrap() error { return ErrTemplateParameter }

// CacheCorruptionError is raised in verification mode when a cached entry
// no longer matches a fresh replay of its layer.
type CacheCorruptionError struct {
	Layer LayerID
	Want  string
	Got   string
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cached structure for layer %d does not match replay (want %s, got %s)", e.Layer, e.Want, e.Got)
}

func (e *CacheCorruptionError) Unwrap() error { return ErrCacheCorruption }

// StepError wraps the failure of a single workflow step.
type StepError struct {
	Index int
	Run   string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Run, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
