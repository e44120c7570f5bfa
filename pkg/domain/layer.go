package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LayerID identifies a layer. IDs are assigned by the store, start at 1 and
// increase monotonically. The zero value means "no layer" and is used as the
// parent of root layers.
type LayerID uint64

// NoLayer is the parent of every root layer.
const NoLayer LayerID = 0

func (id LayerID) String() string { return strconv.FormatUint(uint64(id), 10) }

// IsRoot reports whether id denotes the absence of a parent.
func (id LayerID) IsRoot() bool { return id == NoLayer }

// ParseLayerID parses the decimal form of a layer id.
func ParseLayerID(s string) (LayerID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NoLayer, fmt.Errorf("invalid layer id %q: %w", s, err)
	}
	return LayerID(v), nil
}

// Layer is an immutable record in the layer store.
type Layer struct {
	ID        LayerID
	Parent    LayerID
	Operation Operation
}

type layerJSON struct {
	ID        LayerID           `json:"id"`
	Parent    LayerID           `json:"parent"`
	Operation OperationEnvelope `json:"operation"`
}

// MarshalJSON encodes the operation as a tagged envelope.
func (l Layer) MarshalJSON() ([]byte, error) {
	env, err := EncodeOperation(l.Operation)
	if err != nil {
		return nil, err
	}
	return json.Marshal(layerJSON{ID: l.ID, Parent: l.Parent, Operation: env})
}

// UnmarshalJSON decodes a layer written by MarshalJSON.
func (l *Layer) UnmarshalJSON(data []byte) error {
	var raw layerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	op, err := DecodeOperation(raw.Operation.Kind, raw.Operation.Payload)
	if err != nil {
		return err
	}
	l.ID, l.Parent, l.Operation = raw.ID, raw.Parent, op
	return nil
}
