// Package process runs external calculation programs against a structure.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Runner implements ports.CalculationRunner by executing local processes.
// Programs come from a registry of named tools; ad-hoc programs named by
// the workflow run only when inline execution is enabled.
type Runner struct {
	registry    map[string]ToolConfig
	allowInline bool
	baseDir     string
	timeout     time.Duration
	logger      *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry adds the tools of a loaded registry.
func WithRegistry(tools map[string]ToolConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			tool.Name = name
			r.registry[name] = tool
		}
	}
}

// WithInlineExecution allows requests naming a program directly.
func WithInlineExecution(allow bool) RunnerOption {
	return func(r *Runner) {
		r.allowInline = allow
	}
}

// WithBaseDir sets the directory relative working directories resolve against.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithDefaultTimeout bounds requests that do not set their own timeout.
func WithDefaultTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ToolConfig),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the registry.
func (r *Runner) Register(name, command string, args ...string) {
	r.registry[name] = ToolConfig{Name: name, Command: command, Args: args}
}

type invocation struct {
	program string
	args    []string
	env     map[string]string
}

func (r *Runner) resolve(req ports.CalculationRequest) (invocation, error) {
	if req.Tool != "" {
		tool, ok := r.registry[req.Tool]
		if !ok {
			return invocation{}, &domain.NotFoundError{Kind: "tool", Name: req.Tool}
		}
		env := make(map[string]string, len(tool.Environment)+len(req.Env))
		for k, v := range tool.Environment {
			env[k] = v
		}
		for k, v := range req.Env {
			env[k] = v
		}
		args := append(append([]string{}, tool.Args...), req.Args...)
		return invocation{program: tool.Command, args: args, env: env}, nil
	}
	if req.Program == "" {
		return invocation{}, fmt.Errorf("calculation requires a tool or a program")
	}
	if !r.allowInline {
		return invocation{}, &domain.ExternalToolError{Program: req.Program, ExitCode: -1, Reason: "inline execution is disabled; register the program as a tool"}
	}
	return invocation{program: req.Program, args: req.Args, env: req.Env}, nil
}

// Calculate writes the structure to the working directory, runs the program
// and turns its output coordinates into a Fill over the occupied slots.
func (r *Runner) Calculate(ctx context.Context, req ports.CalculationRequest) (domain.Operation, error) {
	if req.Structure == nil {
		return nil, fmt.Errorf("calculation requires a structure")
	}
	inv, err := r.resolve(req)
	if err != nil {
		return nil, err
	}

	inFormat, err := formatFor(req.InputFormat, req.InputFilename)
	if err != nil {
		return nil, err
	}
	outFormat, err := formatFor(req.OutputFormat, req.OutputFilename)
	if err != nil {
		return nil, err
	}
	inName := req.InputFilename
	if inName == "" {
		inName = "input." + inFormat
	}

	dir, cleanup, err := r.workdir(req.WorkingDirectory)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	input, err := encode(req.Structure, inFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, inName), input, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.program, inv.args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	cmd.Env = append(cmd.Environ(),
		"STRATA_INPUT="+inName,
		"STRATA_INPUT_FORMAT="+inFormat,
		"STRATA_OUTPUT="+req.OutputFilename,
	)
	keys := make([]string, 0, len(inv.env))
	for k := range inv.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+inv.env[k])
	}

	var stdout, stderr bytes.Buffer
	closeOut, err := attach(&cmd.Stdout, &stdout, dir, req.Stdout)
	if err != nil {
		return nil, err
	}
	defer closeOut()
	closeErr, err := attach(&cmd.Stderr, &stderr, dir, req.Stderr)
	if err != nil {
		return nil, err
	}
	defer closeErr()

	started := time.Now()
	r.logger.Debug("starting calculation", "program", inv.program, "args", inv.args, "dir", dir)
	runErr := cmd.Run()
	r.logger.Debug("calculation finished", "program", inv.program, "duration", time.Since(started), "err", runErr)

	if runErr != nil {
		toolErr := &domain.ExternalToolError{Program: inv.program, ExitCode: -1, Stderr: tail(stderr.String())}
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			toolErr.Reason = fmt.Sprintf("timed out after %s", timeout)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(runErr, &exitErr):
			toolErr.ExitCode = exitErr.ExitCode()
		default:
			toolErr.Reason = runErr.Error()
		}
		return nil, toolErr
	}

	output := stdout.Bytes()
	if req.OutputFilename != "" {
		output, err = os.ReadFile(filepath.Join(dir, req.OutputFilename))
		if err != nil {
			return nil, &domain.ExternalToolError{Program: inv.program, Reason: fmt.Sprintf("missing output file: %v", err)}
		}
	}
	atoms, err := decodeAtoms(output, outFormat)
	if err != nil {
		return nil, &domain.ExternalToolError{Program: inv.program, Reason: err.Error()}
	}
	fill, err := coordinates(req.Structure, atoms)
	if err != nil {
		return nil, &domain.ExternalToolError{Program: inv.program, Reason: err.Error()}
	}
	return fill, nil
}

// workdir returns the directory the program runs in. Without an explicit
// directory a temporary one is created and removed afterwards.
func (r *Runner) workdir(dir string) (string, func(), error) {
	if dir == "" {
		tmp, err := os.MkdirTemp(r.baseDir, "strata-calc-*")
		if err != nil {
			return "", nil, fmt.Errorf("failed to create working directory: %w", err)
		}
		return tmp, func() { _ = os.RemoveAll(tmp) }, nil
	}
	if !filepath.IsAbs(dir) && r.baseDir != "" {
		dir = filepath.Join(r.baseDir, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	return dir, func() {}, nil
}

// attach points a command stream at buf and, when name is set, at a file too.
func attach(dst *io.Writer, buf *bytes.Buffer, dir, name string) (func(), error) {
	if name == "" {
		*dst = buf
		return func() {}, nil
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	*dst = io.MultiWriter(buf, f)
	return func() { _ = f.Close() }, nil
}

// tail keeps the end of long stderr output.
func tail(s string) string {
	const max = 4096
	if len(s) > max {
		return "..." + s[len(s)-max:]
	}
	return s
}

// coordinates maps output atoms back onto the structure. A list as long as
// the occupied slots is matched in order; a list as long as all slots is
// matched slot by slot. Elements must agree.
func coordinates(s *domain.Structure, atoms []domain.Atom) (domain.Fill, error) {
	occupied := s.OccupiedIndexes()
	var targets []int
	switch {
	case len(atoms) == len(occupied):
		targets = occupied
	case len(atoms) == s.Len():
		for _, i := range occupied {
			if atoms[i].Vacant() {
				return domain.Fill{}, fmt.Errorf("output leaves occupied slot %d empty", i)
			}
		}
		targets = occupied
		picked := make([]domain.Atom, len(occupied))
		for k, i := range occupied {
			picked[k] = atoms[i]
		}
		atoms = picked
	default:
		return domain.Fill{}, fmt.Errorf("output has %d atoms, structure has %d", len(atoms), len(occupied))
	}

	patch := domain.Structure{Atoms: make([]domain.Atom, s.Len())}
	for k, i := range targets {
		want := s.Atoms[i].Element
		if got := atoms[k].Element; got != 0 && got != want {
			return domain.Fill{}, fmt.Errorf("output atom %d is %s, expected %s", k, Symbol(got), Symbol(want))
		}
		patch.Atoms[i] = domain.Atom{Element: want, Position: atoms[k].Position}
	}
	return domain.Fill{Structure: patch}, nil
}
