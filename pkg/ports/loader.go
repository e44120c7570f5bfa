package ports

import "context"

// SourceLoader reads workflow templates and fragment files.
// This allows the workflow machine to be decoupled from the filesystem.
type SourceLoader interface {
	// Read returns the raw bytes behind ref together with a canonical name
	// for it. ref is interpreted relative to the canonical name of from,
	// which is empty for top-level references.
	Read(ctx context.Context, ref, from string) (data []byte, name string, err error)

	// Glob lists the canonical names matching pattern in lexical order.
	Glob(ctx context.Context, pattern, from string) ([]string, error)
}
