package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Term matches a set of atoms. Exactly one matcher must be set.
type Term struct {
	All     bool   `json:"all,omitempty" mapstructure:"all"`
	Index   *int   `json:"index,omitempty" mapstructure:"index"`
	Indexes []int  `json:"indexes,omitempty" mapstructure:"indexes"`
	ID      string `json:"id,omitempty" mapstructure:"id"`
	Group   string `json:"group,omitempty" mapstructure:"group"`
	Element int    `json:"element,omitempty" mapstructure:"element"`
}

// Selector resolves to the union of Includes minus the union of Excludes.
type Selector struct {
	Includes []Term `json:"includes,omitempty" mapstructure:"includes"`
	Excludes []Term `json:"excludes,omitempty" mapstructure:"excludes"`
}

// SelectAll matches every occupied atom.
func SelectAll() Selector { return Selector{Includes: []Term{{All: true}}} }

// SelectIndex matches the atom in slot i.
func SelectIndex(i int) Selector { return Selector{Includes: []Term{IndexTerm(i)}} }

// SelectIndexes matches the atoms in the given slots.
func SelectIndexes(i ...int) Selector { return Selector{Includes: []Term{{Indexes: i}}} }

// SelectID matches the atom bound to a name.
func SelectID(id string) Selector { return Selector{Includes: []Term{{ID: id}}} }

// SelectGroup matches the members of a named group.
func SelectGroup(g string) Selector { return Selector{Includes: []Term{{Group: g}}} }

// SelectElement matches every atom of an element.
func SelectElement(z int) Selector { return Selector{Includes: []Term{{Element: z}}} }

// IndexTerm builds a term matching slot i.
func IndexTerm(i int) Term { return Term{Index: &i} }

// Except returns a copy of s with additional exclusions.
func (s Selector) Except(terms ...Term) Selector {
	return Selector{
		Includes: slices.Clone(s.Includes),
		Excludes: append(slices.Clone(s.Excludes), terms...),
	}
}

// IsZero reports whether the selector has no terms at all.
func (s Selector) IsZero() bool { return len(s.Includes) == 0 && len(s.Excludes) == 0 }

// ParseTerm parses the shorthand forms all, index:N, indexes:N,M, id:NAME,
// group:NAME and element:Z.
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if s == "all" {
		return Term{All: true}, nil
	}
	key, val, ok := strings.Cut(s, ":")
	if !ok || val == "" {
		return Term{}, fmt.Errorf("invalid selector term %q", s)
	}
	switch key {
	case "index":
		i, err := strconv.Atoi(val)
		if err != nil {
			return Term{}, fmt.Errorf("invalid index in selector term %q: %w", s, err)
		}
		return IndexTerm(i), nil
	case "indexes":
		var out []int
		for _, part := range strings.Split(val, ",") {
			i, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return Term{}, fmt.Errorf("invalid index in selector term %q: %w", s, err)
			}
			out = append(out, i)
		}
		return Term{Indexes: out}, nil
	case "id":
		return Term{ID: val}, nil
	case "group":
		return Term{Group: val}, nil
	case "element":
		z, err := strconv.Atoi(val)
		if err != nil {
			return Term{}, fmt.Errorf("invalid element in selector term %q: %w", s, err)
		}
		return Term{Element: z}, nil
	default:
		return Term{}, fmt.Errorf("unknown selector term kind %q", key)
	}
}

// ParseSelector parses a single shorthand term into an include-only selector.
func ParseSelector(s string) (Selector, error) {
	t, err := ParseTerm(s)
	if err != nil {
		return Selector{}, err
	}
	return Selector{Includes: []Term{t}}, nil
}

func (t Term) String() string {
	switch {
	case t.All:
		return "all"
	case t.Index != nil:
		return "index:" + strconv.Itoa(*t.Index)
	case len(t.Indexes) > 0:
		parts := make([]string, len(t.Indexes))
		for i, v := range t.Indexes {
			parts[i] = strconv.Itoa(v)
		}
		return "indexes:" + strings.Join(parts, ",")
	case t.ID != "":
		return "id:" + t.ID
	case t.Group != "":
		return "group:" + t.Group
	case t.Element != 0:
		return "element:" + strconv.Itoa(t.Element)
	}
	return "<empty>"
}

func (s Selector) String() string {
	inc := make([]string, len(s.Includes))
	for i, t := range s.Includes {
		inc[i] = t.String()
	}
	out := "[" + strings.Join(inc, " ") + "]"
	if len(s.Excludes) > 0 {
		exc := make([]string, len(s.Excludes))
		for i, t := range s.Excludes {
			exc[i] = t.String()
		}
		out += " except [" + strings.Join(exc, " ") + "]"
	}
	return out
}

func (t Term) matchers() int {
	n := 0
	if t.All {
		n++
	}
	if t.Index != nil {
		n++
	}
	if len(t.Indexes) > 0 {
		n++
	}
	if t.ID != "" {
		n++
	}
	if t.Group != "" {
		n++
	}
	if t.Element != 0 {
		n++
	}
	return n
}

func (t Term) match(st *Structure, sel string) ([]int, error) {
	fail := func(format string, args ...any) error {
		return &SelectorResolutionError{Selector: sel, Reason: fmt.Sprintf(format, args...)}
	}
	if n := t.matchers(); n != 1 {
		return nil, fail("term must set exactly one matcher, got %d", n)
	}
	occupied := func(i int) error {
		if i < 0 || i >= st.Len() {
			return fail("index %d out of range (structure has %d slots)", i, st.Len())
		}
		if st.Atoms[i].Vacant() {
			return fail("index %d is vacant", i)
		}
		return nil
	}
	switch {
	case t.All:
		return st.OccupiedIndexes(), nil
	case t.Index != nil:
		if err := occupied(*t.Index); err != nil {
			return nil, err
		}
		return []int{*t.Index}, nil
	case len(t.Indexes) > 0:
		for _, i := range t.Indexes {
			if err := occupied(i); err != nil {
				return nil, err
			}
		}
		return t.Indexes, nil
	case t.ID != "":
		i, ok := st.IDs[t.ID]
		if !ok {
			return nil, fail("unknown id %q", t.ID)
		}
		if err := occupied(i); err != nil {
			return nil, err
		}
		return []int{i}, nil
	case t.Group != "":
		members, ok := st.Groups[t.Group]
		if !ok {
			return nil, fail("unknown group %q", t.Group)
		}
		out := make([]int, 0, len(members))
		for _, i := range members {
			if st.Occupied(i) {
				out = append(out, i)
			}
		}
		return out, nil
	default:
		var out []int
		for i, a := range st.Atoms {
			if a.Element == t.Element {
				out = append(out, i)
			}
		}
		return out, nil
	}
}

// Resolve returns the ascending, duplicate-free atom indices selected in st.
// An empty result is an error, as is any reference to an unknown id or group
// or to a vacant or out-of-range slot.
func (s Selector) Resolve(st *Structure) ([]int, error) {
	name := s.String()
	if len(s.Includes) == 0 {
		return nil, &SelectorResolutionError{Selector: name, Reason: "no include terms"}
	}
	set := map[int]bool{}
	for _, t := range s.Includes {
		idx, err := t.match(st, name)
		if err != nil {
			return nil, err
		}
		for _, i := range idx {
			set[i] = true
		}
	}
	for _, t := range s.Excludes {
		idx, err := t.match(st, name)
		if err != nil {
			return nil, err
		}
		for _, i := range idx {
			delete(set, i)
		}
	}
	if len(set) == 0 {
		return nil, &SelectorResolutionError{Selector: name, Reason: "selection is empty"}
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	slices.Sort(out)
	return out, nil
}

// ResolveOne resolves s and requires exactly one atom.
func (s Selector) ResolveOne(st *Structure) (int, error) {
	idx, err := s.Resolve(st)
	if err != nil {
		return 0, err
	}
	if len(idx) != 1 {
		return 0, &SelectorResolutionError{
			Selector: s.String(),
			Reason:   fmt.Sprintf("ambiguous: expected one atom, matched %d", len(idx)),
		}
	}
	return idx[0], nil
}
