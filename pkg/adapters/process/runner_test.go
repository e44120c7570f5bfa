package process_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/adapters/process"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh unavailable: %v", err)
	}
}

// water with a vacated slot between the oxygen and the hydrogens
func water() *domain.Structure {
	s := domain.NewStructure()
	s.Title = "water"
	s.Atoms = []domain.Atom{
		{Element: 8},
		{},
		{Element: 1, Position: domain.Vec3{0.96, 0, 0}},
		{Element: 1, Position: domain.Vec3{-0.24, 0.93, 0}},
	}
	return s
}

func shell(script string) ports.CalculationRequest {
	return ports.CalculationRequest{
		Program:        "sh",
		Args:           []string{"-c", script},
		InputFilename:  "in.xyz",
		OutputFilename: "out.xyz",
		Structure:      water(),
	}
}

func TestRunner_Calculate(t *testing.T) {
	requireShell(t)
	runner := process.NewRunner(process.WithInlineExecution(true))
	ctx := context.Background()

	t.Run("Copies Coordinates Back Onto Occupied Slots", func(t *testing.T) {
		op, err := runner.Calculate(ctx, shell(`printf '3\nopt\nO 0 0 0.1\nH 1 0 0\nH -0.25 0.95 0\n' > out.xyz`))
		require.NoError(t, err)

		fill, ok := op.(domain.Fill)
		require.True(t, ok)
		require.Len(t, fill.Structure.Atoms, 4)
		assert.Equal(t, domain.Atom{Element: 8, Position: domain.Vec3{0, 0, 0.1}}, fill.Structure.Atoms[0])
		assert.True(t, fill.Structure.Atoms[1].Vacant())
		assert.Equal(t, domain.Vec3{1, 0, 0}, fill.Structure.Atoms[2].Position)
	})

	t.Run("Round Trips Its Own Input", func(t *testing.T) {
		op, err := runner.Calculate(ctx, shell(`cp "$STRATA_INPUT" out.xyz`))
		require.NoError(t, err)
		fill := op.(domain.Fill)
		assert.InDeltaSlice(t, []float64{-0.24, 0.93, 0}, fill.Structure.Atoms[3].Position[:], 1e-8)
	})

	t.Run("Reads JSON From Stdout", func(t *testing.T) {
		req := shell(`cat in.json`)
		req.InputFilename = "in.json"
		req.OutputFilename = ""
		req.OutputFormat = process.FormatJSON
		op, err := runner.Calculate(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, water().Atoms[2], op.(domain.Fill).Structure.Atoms[2])
	})

	t.Run("Non-Zero Exit", func(t *testing.T) {
		_, err := runner.Calculate(ctx, shell(`echo "scf failed" >&2; exit 3`))
		require.ErrorIs(t, err, domain.ErrExternalTool)
		var toolErr *domain.ExternalToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, 3, toolErr.ExitCode)
		assert.Contains(t, toolErr.Stderr, "scf failed")
	})

	t.Run("Atom Count Mismatch", func(t *testing.T) {
		_, err := runner.Calculate(ctx, shell(`printf '1\n\nO 0 0 0\n' > out.xyz`))
		assert.ErrorIs(t, err, domain.ErrExternalTool)
	})

	t.Run("Element Mismatch", func(t *testing.T) {
		_, err := runner.Calculate(ctx, shell(`printf '3\n\nN 0 0 0\nH 1 0 0\nH 0 1 0\n' > out.xyz`))
		assert.ErrorIs(t, err, domain.ErrExternalTool)
	})

	t.Run("Missing Output File", func(t *testing.T) {
		_, err := runner.Calculate(ctx, shell(`true`))
		assert.ErrorIs(t, err, domain.ErrExternalTool)
	})

	t.Run("Timeout", func(t *testing.T) {
		req := shell(`exec sleep 5`)
		req.Timeout = 100 * time.Millisecond
		start := time.Now()
		_, err := runner.Calculate(ctx, req)
		var toolErr *domain.ExternalToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Contains(t, toolErr.Reason, "timed out")
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}

func TestRunner_WorkingDirectoryAndStreams(t *testing.T) {
	requireShell(t)
	base := t.TempDir()
	runner := process.NewRunner(process.WithInlineExecution(true), process.WithBaseDir(base))

	req := shell(`echo "$GREETING"; cp in.xyz out.xyz`)
	req.WorkingDirectory = "calc"
	req.Env = map[string]string{"GREETING": "hello"}
	req.Stdout = "calc.log"
	_, err := runner.Calculate(context.Background(), req)
	require.NoError(t, err)

	log, err := os.ReadFile(filepath.Join(base, "calc", "calc.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(log))
	assert.FileExists(t, filepath.Join(base, "calc", "in.xyz"), "explicit working directories are kept")
}

func TestRunner_Registry(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: relax
    command: sh
    args: ["-c", "cp in.xyz \"$TARGET\""]
    env: {TARGET: out.xyz}
    description: copies the input
`), 0o644))

	tools, err := process.LoadTools(path)
	require.NoError(t, err)
	require.Contains(t, tools, "relax")

	runner := process.NewRunner(process.WithRegistry(tools))
	req := ports.CalculationRequest{Tool: "relax", InputFilename: "in.xyz", OutputFilename: "out.xyz", Structure: water()}
	_, err = runner.Calculate(context.Background(), req)
	require.NoError(t, err)

	req.Tool = "missing"
	_, err = runner.Calculate(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// inline programs are refused unless enabled
	_, err = runner.Calculate(context.Background(), shell("true"))
	assert.ErrorIs(t, err, domain.ErrExternalTool)
}

func TestLoadTools_Missing(t *testing.T) {
	tools, err := process.LoadTools(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, tools)
}
