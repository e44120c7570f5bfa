package workflow

import (
	"fmt"
	"reflect"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

var (
	selectorType = reflect.TypeOf(domain.Selector{})
	termType     = reflect.TypeOf(domain.Term{})
	bondType     = reflect.TypeOf(domain.Bond{})
	addressType  = reflect.TypeOf(Address{})
)

func termMap(t domain.Term) map[string]any {
	switch {
	case t.All:
		return map[string]any{"all": true}
	case t.Index != nil:
		return map[string]any{"index": *t.Index}
	case len(t.Indexes) > 0:
		return map[string]any{"indexes": t.Indexes}
	case t.ID != "":
		return map[string]any{"id": t.ID}
	case t.Group != "":
		return map[string]any{"group": t.Group}
	default:
		return map[string]any{"element": t.Element}
	}
}

// shorthandHook expands the compact YAML forms:
// selectors and terms as strings ("all", "id:C1"), selectors as a list of
// terms, bonds as [a, b, order] and addresses as [center, replace].
func shorthandHook(from, to reflect.Type, data any) (any, error) {
	switch to {
	case selectorType:
		switch v := data.(type) {
		case string:
			t, err := domain.ParseTerm(v)
			if err != nil {
				return nil, err
			}
			return map[string]any{"includes": []any{termMap(t)}}, nil
		case []any:
			return map[string]any{"includes": v}, nil
		}
	case termType:
		if v, ok := data.(string); ok {
			t, err := domain.ParseTerm(v)
			if err != nil {
				return nil, err
			}
			return termMap(t), nil
		}
	case bondType:
		if v, ok := data.([]any); ok {
			if len(v) != 2 && len(v) != 3 {
				return nil, fmt.Errorf("bond must be [a, b] or [a, b, order], got %d items", len(v))
			}
			m := map[string]any{"a": v[0], "b": v[1], "order": 1.0}
			if len(v) == 3 {
				m["order"] = v[2]
			}
			return m, nil
		}
	case addressType:
		if v, ok := data.([]any); ok {
			if len(v) != 2 {
				return nil, fmt.Errorf("address must be [center, replace], got %d items", len(v))
			}
			return map[string]any{"center": v[0], "replace": v[1]}, nil
		}
	}
	return data, nil
}

// decode maps a generic YAML tree onto out, rejecting unknown keys.
func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			shorthandHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// DecodeOptions maps a step's "with" value onto the runner options in out.
// A nil value leaves out untouched; a value of out's own type is copied.
func DecodeOptions(with, out any) error {
	if with == nil {
		return nil
	}
	if dst := reflect.ValueOf(out); dst.Kind() == reflect.Pointer {
		if src := reflect.ValueOf(with); src.Type() == dst.Elem().Type() {
			dst.Elem().Set(src)
			return nil
		}
	}
	return decode(with, out)
}

// DecodeOperation converts a single-key map such as
// {Translation: {select: all, vector: [1, 0, 0]}} into an operation.
// Typed operations pass through unchanged.
func DecodeOperation(raw any) (domain.Operation, error) {
	if op, ok := raw.(domain.Operation); ok {
		return op, nil
	}
	m, ok := raw.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, fmt.Errorf("operation must be a map with exactly one kind, got %v", raw)
	}
	var (
		kind string
		body any
	)
	for k, v := range m {
		kind, body = k, v
	}
	ptr, err := domain.NewOperation(domain.OpKind(kind))
	if err != nil {
		return nil, err
	}
	if err := decode(body, ptr); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return domain.Deref(ptr)
}

// DecodeStructure converts a generic YAML tree into a structure.
func DecodeStructure(raw any) (*domain.Structure, error) {
	switch v := raw.(type) {
	case *domain.Structure:
		return v.Clone(), nil
	case domain.Structure:
		return v.Clone(), nil
	}
	s := domain.NewStructure()
	if err := decode(raw, s); err != nil {
		return nil, fmt.Errorf("failed to decode structure: %w", err)
	}
	s.Normalize()
	return s, nil
}
