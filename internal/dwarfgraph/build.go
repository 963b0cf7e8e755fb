package dwarfgraph

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/errors"
)

// Build links a decoded, ID-sorted entry list into a graph. The passes run
// in a fixed order: typedef names, containment, declaration merging, file
// names, then type links. A dangling reference never fails the build; a
// broken input contract does.
func Build(entries []Entry, logger zerolog.Logger) (g *Graph, err error) {
	logger = logger.With().Str("component", "graph-builder").Logger()

	g, err = NewGraph(entries, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	defer errors.RecoverViolation(&err)

	g.AssignCollectionNames()
	g.LinkContainment()
	g.MergeDeclarations()
	g.AssignFilenames()
	g.LinkTypes()

	logger.Debug().
		Int("entries", g.Len()).
		Int("dangling", g.Dangling()).
		Msg("Linked debug entry graph")

	return g, nil
}

// panicUnhandled reports a payload variant an exhaustive match does not know.
func panicUnhandled(e *Entry) {
	panic(errors.Violation(InvariantTagDispatch, "entry %#x has unhandled payload %T", e.ID, e.Payload))
}
