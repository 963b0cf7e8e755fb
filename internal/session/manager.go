package session

import (
	"context"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/errors"
)

// Built is a linked graph cached by content fingerprint.
type Built struct {
	Graph       *dwarfgraph.Graph
	Fingerprint uint64
	Path        string
}

// Manager caches linked graphs so that repeated sessions on the same binary
// skip decoding. Graphs are only read after linking, so sessions share
// them; each session builds its own descriptor table.
type Manager struct {
	cache  *lru.Cache[uint64, *Built]
	logger zerolog.Logger
}

// NewManager creates a manager holding up to size graphs.
func NewManager(size int, logger zerolog.Logger) (*Manager, error) {
	cache, err := lru.New[uint64, *Built](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}
	return &Manager{
		cache:  cache,
		logger: logger.With().Str("component", "session").Logger(),
	}, nil
}

// Load returns the linked graph of the binary at path, decoding it on a
// cache miss.
func (m *Manager) Load(ctx context.Context, path string) (*Built, error) {
	fp, err := Fingerprint(path)
	if err != nil {
		return nil, err
	}
	if b, ok := m.cache.Get(fp); ok {
		m.logger.Debug().Str("path", path).Uint64("fingerprint", fp).Msg("Program cache hit")
		return b, nil
	}

	entries, err := dwarfgraph.Decode(ctx, path, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	g, err := dwarfgraph.Build(entries, m.logger)
	if err != nil {
		return nil, err
	}

	b := &Built{Graph: g, Fingerprint: fp, Path: path}
	m.cache.Add(fp, b)
	m.logger.Debug().Str("path", path).Uint64("fingerprint", fp).Msg("Program cached")
	return b, nil
}

// Len is the number of cached graphs.
func (m *Manager) Len() int { return m.cache.Len() }

// Fingerprint hashes the contents of the file at path.
func Fingerprint(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer errors.DeferClose(zerolog.Nop(), f, "failed to close binary")

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return h.Sum64(), nil
}
