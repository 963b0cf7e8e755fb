// Package config provides configuration loading and validation.
package config

import (
	"time"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// SchemaVersion is the configuration schema version.
const SchemaVersion = "1"

// Config represents ~/.varscope/config.yaml.
type Config struct {
	Version   string          `yaml:"version" json:"version" validate:"required" jsonschema:"description=Configuration schema version,default=1"`
	Traversal TraversalConfig `yaml:"traversal" json:"traversal"`
	Disambig  DisambigConfig  `yaml:"disambig" json:"disambig"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
}

// TraversalConfig bounds how far records are derived from each root.
type TraversalConfig struct {
	MaxStructDepth     int  `yaml:"max_struct_depth" json:"max_struct_depth" env:"VARSCOPE_MAX_STRUCT_DEPTH" validate:"gte=0" jsonschema:"description=Times one struct type may be entered from a single root,minimum=0,default=4"`
	MaxNestingDepth    int  `yaml:"max_nesting_depth" json:"max_nesting_depth" env:"VARSCOPE_MAX_NESTING_DEPTH" validate:"gte=0" jsonschema:"description=Struct levels entered from a single root (0 for unlimited),minimum=0"`
	ArrayLengthLimit   int  `yaml:"array_length_limit" json:"array_length_limit" env:"VARSCOPE_ARRAY_LENGTH_LIMIT" validate:"gte=0" jsonschema:"description=Cap on the forward scan of dynamic sequences (0 for unlimited),minimum=0,default=1000"`
	FlattenArrays      bool `yaml:"flatten_arrays" json:"flatten_arrays" env:"VARSCOPE_FLATTEN_ARRAYS" jsonschema:"description=Split small fixed array members into one variable per element"`
	OutputStructVars   bool `yaml:"output_struct_vars" json:"output_struct_vars" env:"VARSCOPE_OUTPUT_STRUCT_VARS" jsonschema:"description=Emit records for struct containers too"`
	DoubleAlignmentFix bool `yaml:"double_alignment_fix" json:"double_alignment_fix" env:"VARSCOPE_DOUBLE_ALIGNMENT_FIX" jsonschema:"description=Correct 4-byte aligned double member offsets,default=true"`
}

// DisambigConfig selects the disambiguation policy.
type DisambigConfig struct {
	PolicyFile             string `yaml:"policy_file,omitempty" json:"policy_file,omitempty" env:"VARSCOPE_POLICY_FILE" jsonschema:"description=Policy file read at startup"`
	GeneratePolicyFile     string `yaml:"generate_policy_file,omitempty" json:"generate_policy_file,omitempty" env:"VARSCOPE_GENERATE_POLICY_FILE" validate:"omitempty,nefield=PolicyFile" jsonschema:"description=Policy file written from observations on exit"`
	AllPointersSingle      bool   `yaml:"all_pointers_single" json:"all_pointers_single" env:"VARSCOPE_ALL_POINTERS_SINGLE" jsonschema:"description=Treat every pointer as one object"`
	FunctionPointersSingle bool   `yaml:"function_pointers_single" json:"function_pointers_single" env:"VARSCOPE_FUNCTION_POINTERS_SINGLE" jsonschema:"description=Treat pointers reached from parameters and return values as one object"`
}

// OutputConfig controls record presentation.
type OutputConfig struct {
	Format string `yaml:"format" json:"format" env:"VARSCOPE_FORMAT" validate:"oneof=text json csv" jsonschema:"description=Record output format,enum=text,enum=json,enum=csv,default=text"`
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty" env:"VARSCOPE_FILTER" validate:"celexpr" jsonschema:"description=CEL expression selecting records"`
}

// WatchConfig controls the repeated walk of a live process.
type WatchConfig struct {
	Interval    time.Duration `yaml:"interval" json:"interval" env:"VARSCOPE_WATCH_INTERVAL" validate:"gt=0" jsonschema:"description=Time between walks,type=string,default=1s"`
	MetricsAddr string        `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty" env:"VARSCOPE_METRICS_ADDR" validate:"omitempty,listenaddr" jsonschema:"description=Address serving Prometheus metrics while watching"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"VARSCOPE_LOG_LEVEL" validate:"oneof=trace debug info warn error" jsonschema:"description=Log level,enum=trace,enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Pretty bool   `yaml:"pretty" json:"pretty" env:"VARSCOPE_LOG_PRETTY" jsonschema:"description=Human-readable console logs"`
}

// CacheConfig sizes the in-memory caches.
type CacheConfig struct {
	ProgramCacheSize int `yaml:"program_cache_size" json:"program_cache_size" env:"VARSCOPE_PROGRAM_CACHE_SIZE" validate:"gte=1" jsonschema:"description=Linked binaries kept in memory,minimum=1,default=8"`
	PageCacheSize    int `yaml:"page_cache_size" json:"page_cache_size" env:"VARSCOPE_PAGE_CACHE_SIZE" validate:"gte=1" jsonschema:"description=Target memory pages cached per live process,minimum=1,default=4096"`
}

// Options converts the traversal settings.
func (c TraversalConfig) Options() traversal.Options {
	return traversal.Options{
		MaxStructDepth:     c.MaxStructDepth,
		MaxNestingDepth:    c.MaxNestingDepth,
		ArrayLengthLimit:   c.ArrayLengthLimit,
		FlattenArrays:      c.FlattenArrays,
		OutputStructVars:   c.OutputStructVars,
		DoubleAlignmentFix: c.DoubleAlignmentFix,
	}
}

// Options converts the disambiguation flags.
func (c DisambigConfig) Options() disambig.Options {
	return disambig.Options{
		AllPointersSingle:      c.AllPointersSingle,
		FunctionPointersSingle: c.FunctionPointersSingle,
	}
}
