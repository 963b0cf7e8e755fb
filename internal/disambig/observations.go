package disambig

import (
	"sync"

	"github.com/coral-mesh/varscope/internal/symtab"
)

// Observations guards the learned flags on variable descriptors. The
// descriptor table is shared by every walk of a session, so all reads and
// writes of the flags go through here.
type Observations struct {
	mu sync.Mutex
}

// NewObservations returns an empty observation tracker.
func NewObservations() *Observations {
	return &Observations{}
}

// Observe records that v was seen non-null and whether it reached more than
// one element. Flags only ever turn on.
func (o *Observations) Observe(v *symtab.Variable, nonNull, multiple bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if nonNull {
		v.ObservedNonNull = true
	}
	if multiple {
		v.ObservedMultiple = true
	}
}

// Observed returns the learned flags of v.
func (o *Observations) Observed(v *symtab.Variable) (nonNull, multiple bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return v.ObservedNonNull, v.ObservedMultiple
}

// Reset clears the learned flags of every variable in prog.
func (o *Observations) Reset(prog *symtab.Program) {
	o.mu.Lock()
	defer o.mu.Unlock()
	forEachVariable(prog, func(v *symtab.Variable) {
		v.ObservedNonNull = false
		v.ObservedMultiple = false
	})
}

// forEachVariable visits globals, function frames and collection members.
func forEachVariable(prog *symtab.Program, fn func(*symtab.Variable)) {
	for _, v := range prog.Globals() {
		fn(v)
	}
	for _, f := range prog.Functions() {
		for _, v := range f.Params {
			fn(v)
		}
		for _, v := range f.Locals {
			fn(v)
		}
		if f.Return != nil {
			fn(f.Return)
		}
	}
	for _, t := range prog.Types() {
		for _, v := range t.Members {
			fn(v)
			for _, e := range v.Flattened {
				fn(e)
			}
		}
		for _, v := range t.StaticMembers {
			fn(v)
		}
	}
}
