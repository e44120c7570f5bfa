package domain

import (
	"encoding/json"
	"fmt"
)

// OpKind is the wire tag of an Operation variant.
type OpKind string

const (
	KindFill           OpKind = "Fill"
	KindIdMap          OpKind = "IdMap"
	KindGroupMap       OpKind = "GroupMap"
	KindSetBond        OpKind = "SetBond"
	KindSetCenter      OpKind = "SetCenter"
	KindDirectionAlign OpKind = "DirectionAlign"
	KindTranslation    OpKind = "Translation"
	KindRotation       OpKind = "Rotation"
	KindSplice         OpKind = "Splice"
	KindRemoveAtoms    OpKind = "RemoveAtoms"
)

// Kinds lists every operation kind in declaration order.
var Kinds = []OpKind{
	KindFill, KindIdMap, KindGroupMap, KindSetBond, KindSetCenter,
	KindDirectionAlign, KindTranslation, KindRotation, KindSplice, KindRemoveAtoms,
}

// Operation is the closed set of structural edits a layer can carry.
// Variants are applied through a Handler, so adding a variant forces every
// Handler implementation to handle it.
type Operation interface {
	Kind() OpKind
	Apply(h Handler, s *Structure) error
	isOperation()
}

// Handler applies each operation variant to a working structure.
type Handler interface {
	Fill(s *Structure, op Fill) error
	IdMap(s *Structure, op IdMap) error
	GroupMap(s *Structure, op GroupMap) error
	SetBond(s *Structure, op SetBond) error
	SetCenter(s *Structure, op SetCenter) error
	DirectionAlign(s *Structure, op DirectionAlign) error
	Translation(s *Structure, op Translation) error
	Rotation(s *Structure, op Rotation) error
	Splice(s *Structure, op Splice) error
	RemoveAtoms(s *Structure, op RemoveAtoms) error
}

// Fill merges a partial structure into the working structure. Occupied atom
// slots of the payload replace the existing ones, vacant slots are ignored.
type Fill struct {
	Structure Structure `json:"structure" mapstructure:"structure"`
}

// IdMap binds names to atom indices.
type IdMap struct {
	IDs map[string]int `json:"ids" mapstructure:"ids"`
}

// GroupMap adds atom indices to named groups.
type GroupMap struct {
	Groups map[string][]int `json:"groups" mapstructure:"groups"`
}

// SetBond sets bond orders. An order of zero removes the bond.
type SetBond struct {
	Bonds []Bond `json:"bonds" mapstructure:"bonds"`
}

// SetCenter translates the whole structure so the selected atom sits at the origin.
type SetCenter struct {
	Select Selector `json:"select" mapstructure:"select"`
}

// DirectionAlign rotates the whole structure around the origin so that the
// vector from the origin to the selected atom points along Direction.
type DirectionAlign struct {
	Select    Selector `json:"select" mapstructure:"select"`
	Direction Vec3     `json:"direction" mapstructure:"direction"`
}

// Translation moves the selected atoms by Vector.
type Translation struct {
	Select Selector `json:"select" mapstructure:"select"`
	Vector Vec3     `json:"vector" mapstructure:"vector"`
}

// Rotation rotates the selected atoms by Angle radians around Axis, which
// passes through the Center atom.
type Rotation struct {
	Select Selector `json:"select" mapstructure:"select"`
	Center Selector `json:"center" mapstructure:"center"`
	Axis   Vec3     `json:"axis" mapstructure:"axis"`
	Angle  float64  `json:"angle" mapstructure:"angle"`
}

// Splice attaches a fragment to the structure. Fragment atom 0 is aligned
// onto the Center atom and fragment atom 1 takes the place of the Replace atom.
// Remaining fragment atoms are appended and their groups are prefixed with
// GroupPrefix.
type Splice struct {
	Center      Selector  `json:"center" mapstructure:"center"`
	Replace     Selector  `json:"replace" mapstructure:"replace"`
	Fragment    Structure `json:"fragment" mapstructure:"fragment"`
	GroupPrefix string    `json:"group_prefix,omitempty" mapstructure:"group_prefix"`
}

// RemoveAtoms vacates the selected atom slots.
type RemoveAtoms struct {
	Select Selector `json:"select" mapstructure:"select"`
}

func (Fill) Kind() OpKind           { return KindFill }
func (IdMap) Kind() OpKind          { return KindIdMap }
func (GroupMap) Kind() OpKind       { return KindGroupMap }
func (SetBond) Kind() OpKind        { return KindSetBond }
func (SetCenter) Kind() OpKind      { return KindSetCenter }
func (DirectionAlign) Kind() OpKind { return KindDirectionAlign }
func (Translation) Kind() OpKind    { return KindTranslation }
func (Rotation) Kind() OpKind       { return KindRotation }
func (Splice) Kind() OpKind         { return KindSplice }
func (RemoveAtoms) Kind() OpKind    { return KindRemoveAtoms }

func (op Fill) Apply(h Handler, s *Structure) error           { return h.Fill(s, op) }
func (op IdMap) Apply(h Handler, s *Structure) error          { return h.IdMap(s, op) }
func (op GroupMap) Apply(h Handler, s *Structure) error       { return h.GroupMap(s, op) }
func (op SetBond) Apply(h Handler, s *Structure) error        { return h.SetBond(s, op) }
func (op SetCenter) Apply(h Handler, s *Structure) error      { return h.SetCenter(s, op) }
func (op DirectionAlign) Apply(h Handler, s *Structure) error { return h.DirectionAlign(s, op) }
func (op Translation) Apply(h Handler, s *Structure) error    { return h.Translation(s, op) }
func (op Rotation) Apply(h Handler, s *Structure) error       { return h.Rotation(s, op) }
func (op Splice) Apply(h Handler, s *Structure) error         { return h.Splice(s, op) }
func (op RemoveAtoms) Apply(h Handler, s *Structure) error    { return h.RemoveAtoms(s, op) }

func (Fill) isOperation()           {}
func (IdMap) isOperation()          {}
func (GroupMap) isOperation()       {}
func (SetBond) isOperation()        {}
func (SetCenter) isOperation()      {}
func (DirectionAlign) isOperation() {}
func (Translation) isOperation()    {}
func (Rotation) isOperation()       {}
func (Splice) isOperation()         {}
func (RemoveAtoms) isOperation()    {}

// OperationEnvelope is the persisted form of an operation.
type OperationEnvelope struct {
	Kind    OpKind          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeOperation serializes an operation into its tagged envelope.
func EncodeOperation(op Operation) (OperationEnvelope, error) {
	if op == nil {
		return OperationEnvelope{}, fmt.Errorf("cannot encode nil operation")
	}
	payload, err := json.Marshal(op)
	if err != nil {
		return OperationEnvelope{}, fmt.Errorf("failed to encode %s operation: %w", op.Kind(), err)
	}
	return OperationEnvelope{Kind: op.Kind(), Payload: payload}, nil
}

// NewOperation returns a pointer to the zero value of the variant for kind.
func NewOperation(kind OpKind) (any, error) {
	switch kind {
	case KindFill:
		return &Fill{}, nil
	case KindIdMap:
		return &IdMap{}, nil
	case KindGroupMap:
		return &GroupMap{}, nil
	case KindSetBond:
		return &SetBond{}, nil
	case KindSetCenter:
		return &SetCenter{}, nil
	case KindDirectionAlign:
		return &DirectionAlign{}, nil
	case KindTranslation:
		return &Translation{}, nil
	case KindRotation:
		return &Rotation{}, nil
	case KindSplice:
		return &Splice{}, nil
	case KindRemoveAtoms:
		return &RemoveAtoms{}, nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
}

// Deref turns the pointer produced by NewOperation back into an Operation value.
func Deref(ptr any) (Operation, error) {
	switch v := ptr.(type) {
	case *Fill:
		return *v, nil
	case *IdMap:
		return *v, nil
	case *GroupMap:
		return *v, nil
	case *SetBond:
		return *v, nil
	case *SetCenter:
		return *v, nil
	case *DirectionAlign:
		return *v, nil
	case *Translation:
		return *v, nil
	case *Rotation:
		return *v, nil
	case *Splice:
		return *v, nil
	case *RemoveAtoms:
		return *v, nil
	default:
		return nil, fmt.Errorf("unsupported operation type %T", ptr)
	}
}

// DecodeOperation restores an operation from its kind tag and JSON payload.
func DecodeOperation(kind OpKind, payload []byte) (Operation, error) {
	ptr, err := NewOperation(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, ptr); err != nil {
		return nil, fmt.Errorf("failed to decode %s operation: %w", kind, err)
	}
	return Deref(ptr)
}
