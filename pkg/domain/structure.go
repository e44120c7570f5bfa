package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Vec3 is a Cartesian position or direction in ångström.
type Vec3 [3]float64

// Atom occupies one slot of a structure. Element 0 marks a vacant slot,
// which keeps the indices of the remaining atoms stable after removals.
type Atom struct {
	Element  int  `json:"element" yaml:"element" mapstructure:"element"`
	Position Vec3 `json:"position" yaml:"position" mapstructure:"position"`
}

// Vacant reports whether the slot holds no atom.
func (a Atom) Vacant() bool { return a.Element == 0 }

// Bond connects two atom slots. A is always lower than B once normalized.
type Bond struct {
	A     int     `json:"a" yaml:"a" mapstructure:"a"`
	B     int     `json:"b" yaml:"b" mapstructure:"b"`
	Order float64 `json:"order" yaml:"order" mapstructure:"order"`
}

// Structure is a materialized molecular model.
type Structure struct {
	Title  string           `json:"title" yaml:"title" mapstructure:"title"`
	Atoms  []Atom           `json:"atoms" yaml:"atoms" mapstructure:"atoms"`
	Bonds  []Bond           `json:"bonds" yaml:"bonds" mapstructure:"bonds"`
	IDs    map[string]int   `json:"ids" yaml:"ids" mapstructure:"ids"`
	Groups map[string][]int `json:"groups" yaml:"groups" mapstructure:"groups"`
}

// NewStructure returns an empty structure with all collections allocated.
func NewStructure() *Structure {
	return &Structure{
		Atoms:  []Atom{},
		Bonds:  []Bond{},
		IDs:    map[string]int{},
		Groups: map[string][]int{},
	}
}

// Clone returns a deep copy. Callers may mutate the copy freely.
func (s *Structure) Clone() *Structure {
	if s == nil {
		return nil
	}
	out := &Structure{Title: s.Title}
	if s.Atoms != nil {
		out.Atoms = slices.Clone(s.Atoms)
	}
	if s.Bonds != nil {
		out.Bonds = slices.Clone(s.Bonds)
	}
	if s.IDs != nil {
		out.IDs = maps.Clone(s.IDs)
	}
	if s.Groups != nil {
		out.Groups = make(map[string][]int, len(s.Groups))
		for k, v := range s.Groups {
			out.Groups[k] = slices.Clone(v)
		}
	}
	return out
}

// Len is the number of slots, vacant ones included.
func (s *Structure) Len() int { return len(s.Atoms) }

// Occupied reports whether index i holds an atom.
func (s *Structure) Occupied(i int) bool {
	return i >= 0 && i < len(s.Atoms) && !s.Atoms[i].Vacant()
}

// OccupiedIndexes lists the non-vacant slots in ascending order.
func (s *Structure) OccupiedIndexes() []int {
	out := make([]int, 0, len(s.Atoms))
	for i, a := range s.Atoms {
		if !a.Vacant() {
			out = append(out, i)
		}
	}
	return out
}

// SetAtom writes slot i, growing the slot list with vacancies as needed.
func (s *Structure) SetAtom(i int, a Atom) {
	if i >= len(s.Atoms) {
		s.Atoms = append(s.Atoms, make([]Atom, i-len(s.Atoms)+1)...)
	}
	s.Atoms[i] = a
}

// SetBond sets the order of the bond between a and b. Zero removes it.
func (s *Structure) SetBond(a, b int, order float64) {
	if a > b {
		a, b = b, a
	}
	for i, bond := range s.Bonds {
		if bond.A == a && bond.B == b {
			if order == 0 {
				s.Bonds = slices.Delete(s.Bonds, i, i+1)
			} else {
				s.Bonds[i].Order = order
			}
			return
		}
	}
	if order != 0 {
		s.Bonds = append(s.Bonds, Bond{A: a, B: b, Order: order})
	}
}

// BondOrder returns the order of the bond between a and b, or 0.
func (s *Structure) BondOrder(a, b int) float64 {
	if a > b {
		a, b = b, a
	}
	for _, bond := range s.Bonds {
		if bond.A == a && bond.B == b {
			return bond.Order
		}
	}
	return 0
}

// AddToGroup appends indices to a group, keeping it sorted and unique.
func (s *Structure) AddToGroup(name string, indices ...int) {
	if s.Groups == nil {
		s.Groups = map[string][]int{}
	}
	g := append(s.Groups[name], indices...)
	slices.Sort(g)
	s.Groups[name] = slices.Compact(g)
}

// Merge applies other on top of s: occupied slots replace, vacancies are
// skipped, bonds are set, ids are rebound and group members are added.
// A non-empty title replaces the current one.
func (s *Structure) Merge(other *Structure) {
	if other == nil {
		return
	}
	if other.Title != "" {
		s.Title = other.Title
	}
	for i, a := range other.Atoms {
		if !a.Vacant() {
			s.SetAtom(i, a)
		}
	}
	for _, b := range other.Bonds {
		s.SetBond(b.A, b.B, b.Order)
	}
	if len(other.IDs) > 0 && s.IDs == nil {
		s.IDs = map[string]int{}
	}
	for k, v := range other.IDs {
		s.IDs[k] = v
	}
	for k, v := range other.Groups {
		s.AddToGroup(k, v...)
	}
}

// Vacate clears the given slots and drops every bond, id and group
// membership that references them.
func (s *Structure) Vacate(indices []int) {
	gone := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(s.Atoms) {
			s.Atoms[i] = Atom{}
			gone[i] = true
		}
	}
	s.Bonds = slices.DeleteFunc(s.Bonds, func(b Bond) bool { return gone[b.A] || gone[b.B] })
	for k, v := range s.IDs {
		if gone[v] {
			delete(s.IDs, k)
		}
	}
	for k, v := range s.Groups {
		v = slices.DeleteFunc(v, func(i int) bool { return gone[i] })
		if len(v) == 0 {
			delete(s.Groups, k)
			continue
		}
		s.Groups[k] = v
	}
}

// Normalize puts the structure into canonical form: every collection is
// allocated, bonds are ordered (A<B, sorted) and group members are sorted
// and unique.
func (s *Structure) Normalize() {
	if s.Atoms == nil {
		s.Atoms = []Atom{}
	}
	if s.IDs == nil {
		s.IDs = map[string]int{}
	}
	if s.Groups == nil {
		s.Groups = map[string][]int{}
	}
	bonds := make([]Bond, 0, len(s.Bonds))
	for _, b := range s.Bonds {
		if b.Order == 0 {
			continue
		}
		if b.A > b.B {
			b.A, b.B = b.B, b.A
		}
		bonds = append(bonds, b)
	}
	slices.SortStableFunc(bonds, func(x, y Bond) int {
		if x.A != y.A {
			return x.A - y.A
		}
		return x.B - y.B
	})
	// last write wins for duplicated pairs
	dedup := bonds[:0]
	for _, b := range bonds {
		if n := len(dedup); n > 0 && dedup[n-1].A == b.A && dedup[n-1].B == b.B {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	s.Bonds = dedup
	for k, v := range s.Groups {
		v = slices.Clone(v)
		slices.Sort(v)
		s.Groups[k] = slices.Compact(v)
	}
}

// Fingerprint is the hex SHA-256 of the canonical JSON form of s.
func (s *Structure) Fingerprint() (string, error) {
	c := s.Clone()
	c.Normalize()
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint structure: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
