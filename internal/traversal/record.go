package traversal

import (
	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/symtab"
)

// Result tells the engine whether to keep deriving records.
type Result int

const (
	Continue Result = iota
	Stop
)

// Element is one address a record covers.
type Element struct {
	Address     uint64
	Allocated   bool
	Initialized bool
	// InRegister marks a root value held in a register; Value holds it.
	InRegister bool
	Value      uint64
	// Data holds the raw little-endian bytes of an initialized scalar or
	// pointer element.
	Data []byte
	// Text is the decoded string for string representations.
	Text string
}

// Record is one visited piece of state.
type Record struct {
	Name     string
	Variable *symtab.Variable
	Type     *symtab.Type
	// Depth is the number of indirections left below this record.
	Depth int
	// Sequence is set when the record covers every element of a sequence.
	Sequence bool
	Elements []Element
	Repr     disambig.Representation
	Decision disambig.Decision
}

// Addresses returns the element addresses in order.
func (r Record) Addresses() []uint64 {
	out := make([]uint64, len(r.Elements))
	for i, e := range r.Elements {
		out[i] = e.Address
	}
	return out
}

// Allocated reports whether every element is allocated.
func (r Record) Allocated() bool {
	for _, e := range r.Elements {
		if !e.Allocated {
			return false
		}
	}
	return true
}

// Consumer receives records in pre-order. Returning Stop ends the walk of
// the current root.
type Consumer func(Record) Result
