package memory

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

// Loader implements ports.SourceLoader over an in-memory file map.
// Names are slash-separated paths.
type Loader struct {
	files map[string][]byte
}

// NewLoader creates a Loader from raw file contents keyed by path.
func NewLoader(files map[string]string) *Loader {
	data := make(map[string][]byte, len(files))
	for k, v := range files {
		data[path.Clean(k)] = []byte(v)
	}
	return &Loader{files: data}
}

func (l *Loader) resolve(ref, from string) string {
	if path.IsAbs(ref) || from == "" {
		return path.Clean(strings.TrimPrefix(ref, "/"))
	}
	return path.Join(path.Dir(from), ref)
}

// Read returns the content stored under ref.
func (l *Loader) Read(ctx context.Context, ref, from string) ([]byte, string, error) {
	name := l.resolve(ref, from)
	content, ok := l.files[name]
	if !ok {
		return nil, "", &domain.NotFoundError{Kind: "file", Name: name}
	}
	return content, name, nil
}

// Glob returns the stored names matching pattern.
func (l *Loader) Glob(ctx context.Context, pattern, from string) ([]string, error) {
	pattern = l.resolve(pattern, from)
	var out []string
	for name := range l.files {
		ok, err := path.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
