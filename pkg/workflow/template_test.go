package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expand(t *testing.T, files map[string]string, root string) ([]workflow.Step, error) {
	t.Helper()
	loader := memory.NewLoader(files)
	def, err := workflow.LoadDefinition(context.Background(), loader, root)
	require.NoError(t, err)
	return workflow.Expand(context.Background(), def, loader)
}

func TestExpand_CallerParamsWin(t *testing.T) {
	files := map[string]string{
		"main.yaml": `
params: {shift: 2}
steps:
  - load: templates/move.yaml
    from: base
    model: moved
    name: after_move
    params: {dx: "${shift}", label: caller}
  - run: Output
`,
		"templates/move.yaml": `
params: {dx: 1, dy: 5, label: default}
steps:
  - run: AppendLayers
    with:
      - Translation: {select: all, vector: ["${dx}", "${dy}", 0]}
  - run: CheckPoint
    with: "moved_by_${label}"
`,
	}
	steps, err := expand(t, files, "main.yaml")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	first := steps[0]
	assert.Equal(t, "base", first.From)
	assert.Equal(t, "moved", first.Model)
	assert.Equal(t, "templates/move.yaml", first.Source)
	vec := first.With.([]any)[0].(map[string]any)["Translation"].(map[string]any)["vector"].([]any)
	assert.Equal(t, []any{2, 5, 0}, vec, "whole placeholders keep their type")

	assert.Equal(t, "moved_by_caller", steps[1].With)
	assert.Equal(t, "after_move", steps[1].Name)
	assert.Empty(t, steps[1].From)

	assert.Equal(t, "Output", steps[2].Run)
	assert.Equal(t, "main.yaml", steps[2].Source)
}

func TestExpand_Errors(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		check func(t *testing.T, err error)
	}{
		{
			name: "missing parameter",
			files: map[string]string{"main.yaml": `
steps:
  - run: CheckPoint
    with: "${nope}"
`},
			check: func(t *testing.T, err error) {
				var te *domain.TemplateParameterError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, "nope", te.Key)
				assert.Equal(t, "missing", te.Reason)
			},
		},
		{
			name: "malformed placeholder",
			files: map[string]string{"main.yaml": `
steps:
  - run: CheckPoint
    with: "ckpt_${1bad}"
`},
			check: func(t *testing.T, err error) {
				var te *domain.TemplateParameterError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, "malformed placeholder", te.Reason)
			},
		},
		{
			name: "unterminated placeholder",
			files: map[string]string{"main.yaml": `
params: {x: 1}
steps:
  - run: CheckPoint
    with: "ckpt_${x"
`},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrTemplateParameter)
			},
		},
		{
			name: "include cycle",
			files: map[string]string{
				"main.yaml": "steps:\n  - load: a.yaml\n",
				"a.yaml":    "steps:\n  - load: b.yaml\n",
				"b.yaml":    "steps:\n  - load: a.yaml\n",
			},
			check: func(t *testing.T, err error) {
				var te *domain.TemplateParameterError
				require.ErrorAs(t, err, &te)
				assert.Contains(t, te.Reason, "a.yaml -> b.yaml -> a.yaml")
			},
		},
		{
			name:  "missing include",
			files: map[string]string{"main.yaml": "steps:\n  - load: ghost.yaml\n"},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrNotFound)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := expand(t, tc.files, "main.yaml")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestExpand_DepthLimit(t *testing.T) {
	files := map[string]string{}
	for i := 0; i <= workflow.MaxIncludeDepth+1; i++ {
		files[fmt.Sprintf("t%d.yaml", i)] = fmt.Sprintf("steps:\n  - load: t%d.yaml\n", i+1)
	}
	files[fmt.Sprintf("t%d.yaml", workflow.MaxIncludeDepth+2)] = "steps:\n  - run: Output\n"

	_, err := expand(t, files, "t0.yaml")
	var te *domain.TemplateParameterError
	require.ErrorAs(t, err, &te)
	assert.True(t, strings.Contains(te.Reason, "include depth"), te.Reason)

	// exactly at the limit is fine
	files = map[string]string{}
	for i := 0; i < workflow.MaxIncludeDepth; i++ {
		files[fmt.Sprintf("t%d.yaml", i)] = fmt.Sprintf("steps:\n  - load: t%d.yaml\n", i+1)
	}
	files[fmt.Sprintf("t%d.yaml", workflow.MaxIncludeDepth)] = "steps:\n  - run: Output\n"
	steps, err := expand(t, files, "t0.yaml")
	require.NoError(t, err)
	require.Len(t, steps, 1)
}

func TestParseDefinition_Validation(t *testing.T) {
	_, err := workflow.ParseDefinition([]byte("steps:\n  - run: Output\n    load: x.yaml\n"))
	assert.Error(t, err)

	_, err = workflow.ParseDefinition([]byte("steps:\n  - name: orphan\n"))
	assert.Error(t, err)

	_, err = workflow.ParseDefinition([]byte("steps:\n  - run: Output\n    params: {a: 1}\n"))
	assert.Error(t, err)

	_, err = workflow.ParseDefinition([]byte("stepz: []\n"))
	assert.Error(t, err, "unknown fields are rejected")

	def, err := workflow.ParseDefinition([]byte("title: ok\nsteps:\n  - run: Output\n"))
	require.NoError(t, err)
	assert.Equal(t, "ok", def.Title)
}
