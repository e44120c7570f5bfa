package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink implements ports.ExportSink by writing each artifact under a directory.
type Sink struct {
	dir string
}

// NewSink creates a Sink writing below dir.
func NewSink(dir string) *Sink {
	return &Sink{dir: dir}
}

// Put writes data to dir/key atomically, creating parent directories.
// Keys may not escape the sink directory.
func (s *Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid export key %q", key)
	}
	dest := filepath.Join(s.dir, clean)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	return writeAtomic(dir, dest, ".export-*", data)
}
