// Package constants defines shared configuration constants.
package constants

import "time"

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".varscope"

	// ConfigEnvVar overrides the config file location.
	ConfigEnvVar = "VARSCOPE_CONFIG"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "VARSCOPE_"
)

// PolicySectionDelimiter separates sections of a disambiguation policy file.
const PolicySectionDelimiter = "----SECTION----"

// Traversal defaults.
const (
	// DefaultMaxStructDepth is how many times one struct type may be entered
	// from a single root before recursion stops.
	DefaultMaxStructDepth = 4

	// DefaultArrayLengthLimit caps the live-memory scan of dynamic
	// sequences.
	DefaultArrayLengthLimit = 1000

	DefaultProgramCacheSize = 8

	DefaultPageCacheSize = 4096

	DefaultMetricsAddr = ":9102"
)

// Live process refresh retries.
const (
	RefreshRetries = 3

	RefreshBackoff = 20 * time.Millisecond
)
