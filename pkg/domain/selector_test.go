package domain_test

import (
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ethanol-like skeleton with one vacated slot at index 3
func sample() *domain.Structure {
	s := domain.NewStructure()
	s.Atoms = []domain.Atom{
		{Element: 6},
		{Element: 6, Position: domain.Vec3{1.5, 0, 0}},
		{Element: 8, Position: domain.Vec3{2.2, 1.2, 0}},
		{},
		{Element: 1, Position: domain.Vec3{-0.5, 0.9, 0}},
		{Element: 1, Position: domain.Vec3{-0.5, -0.9, 0}},
	}
	s.IDs = map[string]int{"C1": 0, "C2": 1, "O": 2, "gone": 3}
	s.Groups = map[string][]int{"methyl": {0, 4, 5}, "empty": {3}}
	return s
}

func TestSelector_Resolve(t *testing.T) {
	s := sample()
	cases := []struct {
		name string
		sel  domain.Selector
		want []int
	}{
		{"all skips vacancies", domain.SelectAll(), []int{0, 1, 2, 4, 5}},
		{"index", domain.SelectIndex(2), []int{2}},
		{"indexes are sorted", domain.SelectIndexes(5, 0, 5), []int{0, 5}},
		{"id", domain.SelectID("C2"), []int{1}},
		{"group", domain.SelectGroup("methyl"), []int{0, 4, 5}},
		{"element", domain.SelectElement(1), []int{4, 5}},
		{"union", domain.Selector{Includes: []domain.Term{{ID: "O"}, {Element: 1}}}, []int{2, 4, 5}},
		{"except", domain.SelectAll().Except(domain.Term{Group: "methyl"}), []int{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.sel.Resolve(s)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelector_ResolveErrors(t *testing.T) {
	s := sample()
	cases := []struct {
		name string
		sel  domain.Selector
	}{
		{"everything excluded", domain.SelectGroup("methyl").Except(domain.Term{Element: 6}, domain.Term{Element: 1})},
		{"no includes", domain.Selector{Excludes: []domain.Term{{All: true}}}},
		{"unknown id", domain.SelectID("N1")},
		{"unknown group", domain.SelectGroup("ring")},
		{"vacant index", domain.SelectIndex(3)},
		{"out of range", domain.SelectIndexes(1, 42)},
		{"id on vacant slot", domain.SelectID("gone")},
		{"group of vacancies", domain.SelectGroup("empty")},
		{"element absent", domain.SelectElement(7)},
		{"term with two matchers", domain.Selector{Includes: []domain.Term{{ID: "O", Group: "methyl"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.sel.Resolve(s)
			require.ErrorIs(t, err, domain.ErrSelectorResolution)
		})
	}
}

func TestSelector_ResolveOne(t *testing.T) {
	s := sample()
	i, err := domain.SelectID("O").ResolveOne(s)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = domain.SelectElement(6).ResolveOne(s)
	var selErr *domain.SelectorResolutionError
	require.ErrorAs(t, err, &selErr)
	assert.Contains(t, selErr.Reason, "ambiguous")
	assert.Equal(t, "[element:6]", selErr.Selector)
}

func TestParseTerm(t *testing.T) {
	good := map[string]domain.Term{
		"all":           {All: true},
		"index:4":       domain.IndexTerm(4),
		"indexes:1, 2":  {Indexes: []int{1, 2}},
		"id:C1":         {ID: "C1"},
		" group:ring ":  {Group: "ring"},
		"element:8":     {Element: 8},
	}
	for in, want := range good {
		got, err := domain.ParseTerm(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "C1", "id:", "index:x", "colour:red", "element:O"} {
		_, err := domain.ParseTerm(in)
		assert.Error(t, err, in)
	}

	sel, err := domain.ParseSelector("group:ring")
	require.NoError(t, err)
	assert.Equal(t, domain.SelectGroup("ring"), sel)
	assert.Equal(t, "[all] except [id:C1 indexes:1,2]",
		domain.SelectAll().Except(domain.Term{ID: "C1"}, domain.Term{Indexes: []int{1, 2}}).String())
}
