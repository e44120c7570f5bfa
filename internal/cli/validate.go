package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/aretw0/strata/internal/validator"
	"github.com/aretw0/strata/pkg/adapters/file"
	"github.com/aretw0/strata/pkg/workflow"
)

// ValidateOptions names the workflow to check.
type ValidateOptions struct {
	GlobalOptions
	WorkflowPath string
}

// Validate expands a workflow and reports every static problem found in it.
// Nothing is written to the layer store.
func Validate(ctx context.Context, opts ValidateOptions, out io.Writer) error {
	loader, err := file.NewLoader(filepath.Dir(opts.WorkflowPath))
	if err != nil {
		return err
	}
	def, err := workflow.LoadDefinition(ctx, loader, filepath.Base(opts.WorkflowPath))
	if err != nil {
		return err
	}
	if err := validator.ValidateWorkflow(ctx, def, loader); err != nil {
		return fmt.Errorf("%s: %w", opts.WorkflowPath, err)
	}
	printSystemMessage(out, "Workflow %s is valid.", opts.WorkflowPath)
	return nil
}
