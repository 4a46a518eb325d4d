package models

// ScriptPolicy decides what happens to maintainer scripts
type ScriptPolicy string

const (
	ScriptsPreserve ScriptPolicy = "preserve"
	ScriptsStrip    ScriptPolicy = "strip"
)

// Control fields the pipeline may synthesize when the source lacks them
const (
	GenerateMaintainer  = "maintainer"
	GenerateSummary     = "summary"
	GenerateDescription = "description"
	GenerateChangelog   = "changelog"
)

// ConversionOptions are the knobs the conversion core understands
type ConversionOptions struct {
	Scripts      ScriptPolicy `mapstructure:"scripts" toml:"scripts" yaml:"scripts"`
	Generate     []string     `mapstructure:"generate" toml:"generate" yaml:"generate"`
	Description  string       `mapstructure:"description" toml:"description,omitempty" yaml:"description,omitempty"`
	Maintainer   string       `mapstructure:"maintainer" toml:"maintainer,omitempty" yaml:"maintainer,omitempty"`
	Architecture string       `mapstructure:"architecture" toml:"architecture,omitempty" yaml:"architecture,omitempty"`
	Bump         int          `mapstructure:"bump" toml:"bump" yaml:"bump"`
	Compression  string       `mapstructure:"compression" toml:"compression" yaml:"compression"`
	Exclude      []string     `mapstructure:"exclude" toml:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Generates reports whether field is in the generate set.
func (o ConversionOptions) Generates(field string) bool {
	for _, f := range o.Generate {
		if f == field {
			return true
		}
	}
	return false
}

// ConversionConfig contains configuration for a conversion run
type ConversionConfig struct {
	// Input/Output
	Inputs     []string `mapstructure:"-" toml:"-" yaml:"-"`
	OutputDir  string   `mapstructure:"output_dir" toml:"output_dir" yaml:"output_dir"`
	StagingDir string   `mapstructure:"staging_dir" toml:"staging_dir,omitempty" yaml:"staging_dir,omitempty"`

	// Formats
	Source  string   `mapstructure:"from" toml:"from,omitempty" yaml:"from,omitempty"`
	Targets []string `mapstructure:"to" toml:"to" yaml:"to"`

	// Parallel conversions across input files
	Workers int `mapstructure:"workers" toml:"workers" yaml:"workers"`

	// Signing
	GPGKeyPath    string `mapstructure:"gpg_key" toml:"gpg_key,omitempty" yaml:"gpg_key,omitempty"`
	GPGPassphrase string `mapstructure:"gpg_passphrase" toml:"-" yaml:"-"`

	ConversionOptions `mapstructure:",squash" yaml:",inline"`
}
