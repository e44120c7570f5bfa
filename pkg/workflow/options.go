package workflow

import (
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// RenameOptions configures the Rename runner. A plain string is the target name.
type RenameOptions struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// CheckPointOptions configures the CheckPoint runner. A plain string is the name.
type CheckPointOptions struct {
	Name string `mapstructure:"name"`
}

// Address is one substitution site: the host atom the fragment attaches to
// and the host atom it replaces.
type Address struct {
	Center  domain.Selector `mapstructure:"center"`
	Replace domain.Selector `mapstructure:"replace"`
}

// SubstituentOptions configures the Substituent runner.
type SubstituentOptions struct {
	Address     []Address `mapstructure:"address"`
	FilePattern string    `mapstructure:"file_pattern"`
	// GroupPrefix defaults to "<fragment stem>_".
	GroupPrefix string `mapstructure:"group_prefix"`
}

// CalculationOptions configures the Calculation runner.
type CalculationOptions struct {
	Tool             string            `mapstructure:"tool"`
	WorkingDirectory string            `mapstructure:"working_directory"`
	Program          string            `mapstructure:"program"`
	Args             []string          `mapstructure:"args"`
	Env              map[string]string `mapstructure:"env"`
	InputFormat      string            `mapstructure:"input_format"`
	InputFilename    string            `mapstructure:"input_filename"`
	OutputFormat     string            `mapstructure:"output_format"`
	OutputFilename   string            `mapstructure:"output_filename"`
	Stdout           string            `mapstructure:"stdout"`
	Stderr           string            `mapstructure:"stderr"`
	Timeout          time.Duration     `mapstructure:"timeout"`
}

// OutputOptions configures the Output runner.
type OutputOptions struct {
	// Key is the artifact name; defaults to "<run id>/<model>.json".
	Key string `mapstructure:"key"`
	// Model exports another tip than the active one.
	Model string `mapstructure:"model"`
}
