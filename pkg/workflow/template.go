package workflow

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// MaxIncludeDepth bounds nested load steps.
const MaxIncludeDepth = 16

var (
	paramKey   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
	wholeParam = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}$`)
)

// Expand resolves every load step of def into the steps of the referenced
// file, substituting ${key} placeholders. Parameters passed by the including
// step override the defaults declared in the loaded file's own params.
// A load step's from and model apply to the first included step, its name
// to the last one. Expansion has no side effects on the layer store.
func Expand(ctx context.Context, def *Definition, loader ports.SourceLoader) ([]Step, error) {
	x := expander{ctx: ctx, loader: loader}
	params := def.Params
	if params == nil {
		params = map[string]any{}
	}
	return x.expand(def.Steps, params, def.Source, []string{def.Source}, 0)
}

type expander struct {
	ctx    context.Context
	loader ports.SourceLoader
}

func (x expander) expand(steps []Step, params map[string]any, source string, stack []string, depth int) ([]Step, error) {
	out := make([]Step, 0, len(steps))
	for _, raw := range steps {
		st, err := substituteStep(raw, params, source)
		if err != nil {
			return nil, err
		}
		if st.Load == "" {
			st.Source = source
			out = append(out, st)
			continue
		}

		if depth+1 > MaxIncludeDepth {
			return nil, &domain.TemplateParameterError{
				Source: source,
				Reason: fmt.Sprintf("include depth exceeds %d", MaxIncludeDepth),
			}
		}
		if x.loader == nil {
			return nil, &domain.TemplateParameterError{Source: source, Reason: "load requires a source loader"}
		}
		if err := x.ctx.Err(); err != nil {
			return nil, err
		}
		data, name, err := x.loader.Read(x.ctx, st.Load, source)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to load %s: %w", source, st.Load, err)
		}
		if slices.Contains(stack, name) {
			return nil, &domain.TemplateParameterError{
				Source: source,
				Reason: "include cycle: " + strings.Join(append(stack, name), " -> "),
			}
		}
		child, err := ParseDefinition(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		merged := maps.Clone(child.Params)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, st.Params)

		nested, err := x.expand(child.Steps, merged, name, append(slices.Clone(stack), name), depth+1)
		if err != nil {
			return nil, err
		}
		if len(nested) > 0 {
			first, last := &nested[0], &nested[len(nested)-1]
			if first.From == "" {
				first.From = st.From
			}
			if first.Model == "" {
				first.Model = st.Model
			}
			if st.Name != "" {
				last.Name = st.Name
			}
		}
		out = append(out, nested...)
	}
	return out, nil
}

func substituteStep(st Step, params map[string]any, source string) (Step, error) {
	var err error
	sub := func(s string) string {
		if err != nil {
			return s
		}
		var v any
		v, err = substitute(s, params, source)
		if err != nil {
			return s
		}
		return fmt.Sprint(v)
	}
	st.Name = sub(st.Name)
	st.From = sub(st.From)
	st.Model = sub(st.Model)
	st.Run = sub(st.Run)
	st.Load = sub(st.Load)
	if err != nil {
		return st, err
	}
	if st.With, err = substitute(st.With, params, source); err != nil {
		return st, err
	}
	if st.Params != nil {
		p, err := substitute(map[string]any(st.Params), params, source)
		if err != nil {
			return st, err
		}
		st.Params = p.(map[string]any)
	}
	return st, nil
}

// substitute replaces placeholders in a generic YAML tree. A string that is
// exactly one placeholder takes the parameter's value with its type intact.
func substitute(v any, params map[string]any, source string) (any, error) {
	switch t := v.(type) {
	case string:
		return interpolate(t, params, source)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := substitute(val, params, source)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := substitute(val, params, source)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func interpolate(s string, params map[string]any, source string) (any, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	if m := wholeParam.FindStringSubmatch(s); m != nil {
		v, ok := params[m[1]]
		if !ok {
			return nil, &domain.TemplateParameterError{Source: source, Key: m[1], Reason: "missing"}
		}
		return v, nil
	}

	var b strings.Builder
	rest := s
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])
		end := strings.IndexByte(rest[i+2:], '}')
		if end < 0 {
			return nil, &domain.TemplateParameterError{
				Source: source,
				Reason: fmt.Sprintf("unterminated placeholder in %q", s),
			}
		}
		key := rest[i+2 : i+2+end]
		if !paramKey.MatchString(key) {
			return nil, &domain.TemplateParameterError{Source: source, Key: key, Reason: "malformed placeholder"}
		}
		v, ok := params[key]
		if !ok {
			return nil, &domain.TemplateParameterError{Source: source, Key: key, Reason: "missing"}
		}
		b.WriteString(fmt.Sprint(v))
		rest = rest[i+3+end:]
	}
}
