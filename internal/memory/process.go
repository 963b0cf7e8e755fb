package memory

import (
	"errors"

	"github.com/coral-mesh/varscope/internal/constants"
)

var (
	// ErrNoProcess is returned when the target pid does not exist.
	ErrNoProcess = errors.New("process not found")
	// ErrUnsupported is returned on platforms without live inspection.
	ErrUnsupported = errors.New("live process inspection is only supported on linux")
)

// DefaultPageCacheSize is the number of target pages kept in memory.
const DefaultPageCacheSize = constants.DefaultPageCacheSize

const pageSize = 0x1000
