package materialize

import (
	"fmt"
	"math"

	"github.com/aretw0/strata/pkg/domain"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultHandler applies operations with rigid-body geometry.
type DefaultHandler struct{}

var _ domain.Handler = DefaultHandler{}

// parallelTolerance bounds |sin| below which two directions count as parallel.
const parallelTolerance = 1e-12

func vec(v domain.Vec3) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

func unvec(v r3.Vec) domain.Vec3 { return domain.Vec3{v.X, v.Y, v.Z} }

// alignment returns the rotation taking direction from onto direction to.
func alignment(from, to r3.Vec) (r3.Rotation, error) {
	nf, nt := r3.Norm(from), r3.Norm(to)
	if nf == 0 || nt == 0 {
		return r3.Rotation{}, fmt.Errorf("cannot align a zero-length direction")
	}
	from, to = r3.Scale(1/nf, from), r3.Scale(1/nt, to)
	axis := r3.Cross(from, to)
	cos := math.Max(-1, math.Min(1, r3.Dot(from, to)))
	if r3.Norm(axis) < parallelTolerance {
		if cos > 0 {
			return r3.NewRotation(0, r3.Vec{X: 1}), nil
		}
		// antiparallel: half turn around any perpendicular axis
		axis = r3.Cross(from, r3.Vec{X: 1})
		if r3.Norm(axis) < parallelTolerance {
			axis = r3.Cross(from, r3.Vec{Y: 1})
		}
		return r3.NewRotation(math.Pi, r3.Unit(axis)), nil
	}
	return r3.NewRotation(math.Acos(cos), r3.Unit(axis)), nil
}

func (DefaultHandler) Fill(s *domain.Structure, op domain.Fill) error {
	s.Merge(&op.Structure)
	return nil
}

func (DefaultHandler) IdMap(s *domain.Structure, op domain.IdMap) error {
	for name, i := range op.IDs {
		if i < 0 {
			return fmt.Errorf("id %q: negative index %d", name, i)
		}
		s.IDs[name] = i
	}
	return nil
}

func (DefaultHandler) GroupMap(s *domain.Structure, op domain.GroupMap) error {
	for name, members := range op.Groups {
		for _, i := range members {
			if i < 0 {
				return fmt.Errorf("group %q: negative index %d", name, i)
			}
		}
		s.AddToGroup(name, members...)
	}
	return nil
}

func (DefaultHandler) SetBond(s *domain.Structure, op domain.SetBond) error {
	for _, b := range op.Bonds {
		if !s.Occupied(b.A) || !s.Occupied(b.B) {
			return &domain.SelectorResolutionError{
				Selector: fmt.Sprintf("bond %d-%d", b.A, b.B),
				Reason:   "bond references a vacant or out-of-range slot",
			}
		}
		if b.A == b.B {
			return fmt.Errorf("bond %d-%d: an atom cannot bond to itself", b.A, b.B)
		}
		s.SetBond(b.A, b.B, b.Order)
	}
	return nil
}

func (DefaultHandler) SetCenter(s *domain.Structure, op domain.SetCenter) error {
	i, err := op.Select.ResolveOne(s)
	if err != nil {
		return err
	}
	shift := r3.Scale(-1, vec(s.Atoms[i].Position))
	for _, j := range s.OccupiedIndexes() {
		s.Atoms[j].Position = unvec(r3.Add(vec(s.Atoms[j].Position), shift))
	}
	return nil
}

func (DefaultHandler) DirectionAlign(s *domain.Structure, op domain.DirectionAlign) error {
	i, err := op.Select.ResolveOne(s)
	if err != nil {
		return err
	}
	dir := op.Direction
	if dir == (domain.Vec3{}) {
		dir = domain.Vec3{1, 0, 0}
	}
	rot, err := alignment(vec(s.Atoms[i].Position), vec(dir))
	if err != nil {
		return fmt.Errorf("direction align on atom %d: %w", i, err)
	}
	for _, j := range s.OccupiedIndexes() {
		s.Atoms[j].Position = unvec(rot.Rotate(vec(s.Atoms[j].Position)))
	}
	return nil
}

func (DefaultHandler) Translation(s *domain.Structure, op domain.Translation) error {
	idx, err := op.Select.Resolve(s)
	if err != nil {
		return err
	}
	v := vec(op.Vector)
	for _, i := range idx {
		s.Atoms[i].Position = unvec(r3.Add(vec(s.Atoms[i].Position), v))
	}
	return nil
}

func (DefaultHandler) Rotation(s *domain.Structure, op domain.Rotation) error {
	idx, err := op.Select.Resolve(s)
	if err != nil {
		return err
	}
	c, err := op.Center.ResolveOne(s)
	if err != nil {
		return err
	}
	axis := vec(op.Axis)
	if r3.Norm(axis) == 0 {
		return fmt.Errorf("rotation axis must not be zero")
	}
	rot := r3.NewRotation(op.Angle, r3.Unit(axis))
	origin := vec(s.Atoms[c].Position)
	for _, i := range idx {
		p := r3.Sub(vec(s.Atoms[i].Position), origin)
		s.Atoms[i].Position = unvec(r3.Add(rot.Rotate(p), origin))
	}
	return nil
}

// Splice aligns the fragment's anchor (atom 0) to host atom center and its
// second atom along center->replace. Fragment atom 1 takes over the replace
// slot, fragment atoms 2.. are appended after the last host slot.
func (DefaultHandler) Splice(s *domain.Structure, op domain.Splice) error {
	c, err := op.Center.ResolveOne(s)
	if err != nil {
		return err
	}
	r, err := op.Replace.ResolveOne(s)
	if err != nil {
		return err
	}
	if c == r {
		return fmt.Errorf("splice: center and replace resolve to the same atom %d", c)
	}
	frag := op.Fragment
	if !frag.Occupied(0) || !frag.Occupied(1) {
		return fmt.Errorf("splice: fragment %q needs occupied anchor atoms 0 and 1", frag.Title)
	}

	anchor := vec(frag.Atoms[0].Position)
	host := vec(s.Atoms[c].Position)
	rot, err := alignment(
		r3.Sub(vec(frag.Atoms[1].Position), anchor),
		r3.Sub(vec(s.Atoms[r].Position), host),
	)
	if err != nil {
		return fmt.Errorf("splice: %w", err)
	}
	place := func(a domain.Atom) domain.Atom {
		p := rot.Rotate(r3.Sub(vec(a.Position), anchor))
		return domain.Atom{Element: a.Element, Position: unvec(r3.Add(p, host))}
	}

	offset := s.Len()
	remap := func(i int) int {
		switch i {
		case 0:
			return c
		case 1:
			return r
		}
		return offset + i - 2
	}

	s.Atoms[r] = place(frag.Atoms[1])
	for i := 2; i < frag.Len(); i++ {
		a := frag.Atoms[i]
		if a.Vacant() {
			s.SetAtom(remap(i), domain.Atom{})
			continue
		}
		s.SetAtom(remap(i), place(a))
	}
	for _, b := range frag.Bonds {
		if (b.A == 0 && b.B == 1) || (b.A == 1 && b.B == 0) {
			continue
		}
		if b.A >= frag.Len() || b.B >= frag.Len() {
			return fmt.Errorf("splice: fragment bond %d-%d out of range", b.A, b.B)
		}
		s.SetBond(remap(b.A), remap(b.B), b.Order)
	}
	for name, members := range frag.Groups {
		mapped := make([]int, 0, len(members))
		for _, i := range members {
			if i == 0 || i >= frag.Len() {
				continue
			}
			mapped = append(mapped, remap(i))
		}
		if len(mapped) > 0 {
			s.AddToGroup(op.GroupPrefix+name, mapped...)
		}
	}
	return nil
}

func (DefaultHandler) RemoveAtoms(s *domain.Structure, op domain.RemoveAtoms) error {
	idx, err := op.Select.Resolve(s)
	if err != nil {
		return err
	}
	s.Vacate(idx)
	return nil
}
