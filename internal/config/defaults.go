package config

import (
	"time"

	"github.com/coral-mesh/varscope/internal/constants"
)

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: SchemaVersion,
		Traversal: TraversalConfig{
			MaxStructDepth:     constants.DefaultMaxStructDepth,
			ArrayLengthLimit:   constants.DefaultArrayLengthLimit,
			DoubleAlignmentFix: true,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Watch: WatchConfig{
			Interval:    time.Second,
			MetricsAddr: constants.DefaultMetricsAddr,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			ProgramCacheSize: constants.DefaultProgramCacheSize,
			PageCacheSize:    constants.DefaultPageCacheSize,
		},
	}
}
