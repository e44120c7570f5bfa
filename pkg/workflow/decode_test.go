package workflow_test

import (
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeYAML(t *testing.T, doc string) any {
	t.Helper()
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte(doc), &raw))
	return raw
}

func TestDecodeOperation(t *testing.T) {
	t.Run("selector shorthands", func(t *testing.T) {
		op, err := workflow.DecodeOperation(decodeYAML(t, `
Rotation:
  select: ["group:ring", "index:7"]
  center: "id:C1"
  axis: [0, 0, 1]
  angle: 90
`))
		require.NoError(t, err)
		rot, ok := op.(domain.Rotation)
		require.True(t, ok)
		assert.Equal(t, domain.Selector{Includes: []domain.Term{
			{Group: "ring"},
			domain.IndexTerm(7),
		}}, rot.Select)
		assert.Equal(t, domain.SelectID("C1"), rot.Center)
		assert.Equal(t, domain.Vec3{0, 0, 1}, rot.Axis)
		assert.Equal(t, 90.0, rot.Angle)
	})

	t.Run("full selector form", func(t *testing.T) {
		op, err := workflow.DecodeOperation(decodeYAML(t, `
RemoveAtoms:
  select:
    includes: [{element: 1}]
    excludes: ["id:H1"]
`))
		require.NoError(t, err)
		assert.Equal(t, domain.RemoveAtoms{Select: domain.SelectElement(1).Except(domain.Term{ID: "H1"})}, op)
	})

	t.Run("bond shorthands", func(t *testing.T) {
		op, err := workflow.DecodeOperation(decodeYAML(t, `
SetBond:
  bonds: [[0, 1], [1, 2, 2]]
`))
		require.NoError(t, err)
		assert.Equal(t, domain.SetBond{Bonds: []domain.Bond{{A: 0, B: 1, Order: 1}, {A: 1, B: 2, Order: 2}}}, op)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := workflow.DecodeOperation(map[string]any{"Teleport": map[string]any{}})
		assert.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := workflow.DecodeOperation(decodeYAML(t, "Translation: {select: all, vector: [1, 0, 0], speed: 3}"))
		assert.Error(t, err)
	})

	t.Run("more than one kind", func(t *testing.T) {
		_, err := workflow.DecodeOperation(decodeYAML(t, "{Translation: {}, Rotation: {}}"))
		assert.Error(t, err)
	})

	t.Run("bad bond arity", func(t *testing.T) {
		_, err := workflow.DecodeOperation(decodeYAML(t, "SetBond: {bonds: [[0]]}"))
		assert.Error(t, err)
	})
}

func TestDecodeStructure(t *testing.T) {
	s, err := workflow.DecodeStructure(decodeYAML(t, `
title: water
atoms:
  - {element: 8, position: [0, 0, 0]}
  - {element: 1, position: [0.96, 0, 0]}
  - {element: 1, position: [-0.24, 0.93, 0]}
bonds: [[2, 0], [0, 1]]
ids: {O: 0}
`))
	require.NoError(t, err)
	assert.Equal(t, "water", s.Title)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []domain.Bond{{A: 0, B: 1, Order: 1}, {A: 0, B: 2, Order: 1}}, s.Bonds, "bonds come back normalized")
	assert.NotNil(t, s.Groups)
}
