package validator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/workflow"
)

var files = map[string]string{
	"fragments/methyl.yaml":   "atoms: [{element: 6}]",
	"fragments/hydroxyl.yaml": "atoms: [{element: 8}]",
	"templates/lift.yaml": `
params: {dz: 1}
steps:
  - run: AppendLayers
    with:
      - Translation: {select: all, vector: [0, 0, "${dz}"]}
`,
}

func parse(t *testing.T, doc string) *workflow.Definition {
	t.Helper()
	def, err := workflow.ParseDefinition([]byte(doc))
	require.NoError(t, err)
	def.Source = "workflow.yaml"
	return def
}

func TestValidateWorkflow_Valid(t *testing.T) {
	def := parse(t, `
base: {atoms: [{element: 6}, {element: 1}], ids: {C1: 0, H1: 1}}
steps:
  - load: templates/lift.yaml
    name: lifted
  - run: Substituent
    with:
      address: [[id:C1, id:H1]]
      file_pattern: fragments/*.yaml
  - run: Rename
    with: {from: default_methyl, to: ethane}
  - run: Output
    with: {model: ethane}
  - run: CheckPoint
    with: ready
    from: lifted
  - run: Recolor
`)
	err := ValidateWorkflow(context.Background(), def, memory.NewLoader(files), "Recolor")
	assert.NoError(t, err)
}

func TestLint_Issues(t *testing.T) {
	def := parse(t, `
steps:
  - run: AppendLayers
    with:
      - Twist: {}
  - run: Teleport
  - run: CheckPoint
    with: start
    from: nowhere
  - run: Rename
    with: {from: ghost, to: other}
  - run: Substituent
    with: {file_pattern: "fragments/*.xyz"}
  - run: Calculation
    with: {}
  - run: CheckPoint
    with: start
`)
	issues, err := Lint(context.Background(), def, memory.NewLoader(files))
	require.NoError(t, err)

	var msgs []string
	for _, is := range issues {
		msgs = append(msgs, is.String())
	}
	assert.Contains(t, msgs, "workflow has no base structure")
	assert.Contains(t, msgs, "step 1 (Teleport): unknown runner")
	assert.Contains(t, msgs, `step 2 (CheckPoint): checkpoint "nowhere" is not defined by an earlier step`)
	assert.Contains(t, msgs, `step 3 (Rename): model "ghost" has no tip`)
	assert.Contains(t, msgs, "step 4 (Substituent): at least one address is required")
	assert.Contains(t, msgs, `step 4 (Substituent): no fragment matches "fragments/*.xyz"`)
	assert.Contains(t, msgs, "step 5 (Calculation): either tool or program is required")
	assert.Contains(t, msgs, `step 6 (CheckPoint): checkpoint "start" is already defined`)

	found := false
	for _, is := range issues {
		if is.Step == 0 && is.Run == workflow.RunAppendLayers {
			found = true
		}
	}
	assert.True(t, found, "unknown operation kinds are reported")
}

func TestValidateWorkflow_ExpansionError(t *testing.T) {
	def := parse(t, `
base: {atoms: [{element: 6}]}
steps:
  - load: templates/missing.yaml
`)
	err := ValidateWorkflow(context.Background(), def, memory.NewLoader(files))
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "errors:")
}
