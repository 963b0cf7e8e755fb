package dwarfgraph

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/errors"
)

// Invariant names reported through errors.ContractViolation.
const (
	InvariantPopulated   = "entries-populated"
	InvariantSorted      = "entries-sorted-by-id"
	InvariantRefInRange  = "ref-in-range"
	InvariantTagDispatch = "tag-dispatch-exhaustive"
)

// Graph is the arena of decoded entries plus the links computed over it.
// After Build it is read-only.
type Graph struct {
	entries []Entry
	logger  zerolog.Logger

	// dangling counts references that did not resolve during the last
	// LinkTypes pass.
	dangling int
}

// NewGraph wraps an ID-sorted entry list. The slice is owned by the graph
// from here on.
func NewGraph(entries []Entry, logger zerolog.Logger) (*Graph, error) {
	if len(entries) == 0 {
		return nil, errors.Violation(InvariantPopulated, "entry list is empty")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			return nil, errors.Violation(InvariantSorted,
				"entry %d has id %#x after %#x", i, entries[i].ID, entries[i-1].ID)
		}
	}
	for i := range entries {
		if entries[i].Payload == nil {
			return nil, errors.Violation(InvariantTagDispatch, "entry %#x has no payload", entries[i].ID)
		}
	}
	return &Graph{
		entries: entries,
		logger:  logger,
	}, nil
}

// Len returns the number of entries.
func (g *Graph) Len() int { return len(g.entries) }

// Entry returns the entry addressed by r, or nil for NoRef.
func (g *Graph) Entry(r Ref) *Entry {
	if r == NoRef {
		return nil
	}
	errors.Assert(int(r) <= len(g.entries), InvariantRefInRange, "ref %d beyond %d entries", r, len(g.entries))
	return &g.entries[r-1]
}

// RefAt converts an arena index into a Ref.
func (g *Graph) RefAt(idx int) Ref {
	errors.Assert(idx >= 0 && idx < len(g.entries), InvariantRefInRange, "index %d beyond %d entries", idx, len(g.entries))
	return Ref(idx + 1)
}

// Resolve looks up an entry by ID with a binary search. ID 0 and IDs not in
// the arena return false.
func (g *Graph) Resolve(id uint64) (Ref, bool) {
	if id == 0 || len(g.entries) == 0 {
		return NoRef, false
	}
	if id < g.entries[0].ID || id > g.entries[len(g.entries)-1].ID {
		return NoRef, false
	}
	idx := sort.Search(len(g.entries), func(i int) bool {
		return g.entries[i].ID >= id
	})
	if idx < len(g.entries) && g.entries[idx].ID == id {
		return Ref(idx + 1), true
	}
	return NoRef, false
}

// Lookup is Resolve returning the entry itself.
func (g *Graph) Lookup(id uint64) *Entry {
	r, ok := g.Resolve(id)
	if !ok {
		return nil
	}
	return g.Entry(r)
}

// Each calls fn for every entry in ID order.
func (g *Graph) Each(fn func(Ref, *Entry)) {
	for i := range g.entries {
		fn(Ref(i+1), &g.entries[i])
	}
}

// Dangling returns the number of type references left unresolved.
func (g *Graph) Dangling() int { return g.dangling }

// children calls fn for each direct child (Level+1) in the contiguous run
// following the entry at idx.
func (g *Graph) children(idx int, fn func(Ref, *Entry)) {
	parentLevel := g.entries[idx].Level
	for i := idx + 1; i < len(g.entries); i++ {
		child := &g.entries[i]
		if child.Level <= parentLevel {
			return
		}
		if child.Level == parentLevel+1 {
			fn(Ref(i+1), child)
		}
	}
}
