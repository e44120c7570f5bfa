package ports

import (
	"context"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// CalculationRequest describes one external program invocation.
type CalculationRequest struct {
	// Tool optionally names an entry of the tool registry. Its command,
	// arguments and environment are used as defaults.
	Tool string

	WorkingDirectory string
	Program          string
	Args             []string
	Env              map[string]string

	InputFormat    string
	InputFilename  string
	OutputFormat   string
	OutputFilename string

	// Stdout and Stderr optionally name files (relative to the working
	// directory) that receive the program's streams.
	Stdout string
	Stderr string

	Timeout time.Duration

	Structure *domain.Structure
}

// CalculationRunner runs an external program against a structure and turns
// its output into an operation to append. A failed program yields a
// *domain.ExternalToolError and no operation.
type CalculationRunner interface {
	Calculate(ctx context.Context, req CalculationRequest) (domain.Operation, error)
}

// ExportSink receives exported artifacts.
type ExportSink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
