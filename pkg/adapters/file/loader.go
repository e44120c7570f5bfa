package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/aretw0/strata/pkg/domain"
)

// Loader implements ports.SourceLoader over the local filesystem.
// Canonical names are absolute, cleaned paths.
type Loader struct {
	root string
}

// NewLoader creates a Loader resolving top-level references against root.
// An empty root means the working directory.
func NewLoader(root string) (*Loader, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve loader root: %w", err)
	}
	return &Loader{root: abs}, nil
}

// Root returns the absolute directory top-level references resolve against.
func (l *Loader) Root() string { return l.root }

func (l *Loader) resolve(ref, from string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	base := l.root
	if from != "" {
		base = filepath.Dir(from)
	}
	return filepath.Join(base, filepath.FromSlash(ref))
}

// Read returns the file content behind ref, relative to the directory of from.
func (l *Loader) Read(ctx context.Context, ref, from string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	name := l.resolve(ref, from)
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", &domain.NotFoundError{Kind: "file", Name: name}
		}
		return nil, "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, name, nil
}

// Glob lists regular files matching pattern in lexical order.
func (l *Loader) Glob(ctx context.Context, pattern, from string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(l.resolve(pattern, from))
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
