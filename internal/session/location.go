package session

import (
	"fmt"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/safe"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// ReturnRegister is the register key under which a captured frame holds the
// value its function returned.
const ReturnRegister = "return"

// RegisterName names DWARF register n the way memory inspectors expect it.
func RegisterName(n int) string {
	return fmt.Sprintf("r%d", n)
}

// Locate computes where v lives in the frame of ectx. Addresses from the
// binary are shifted by the load bias.
func Locate(ectx *traversal.ExecutionContext, v *symtab.Variable) (traversal.Location, bool) {
	if v.Scope == symtab.ScopeReturn {
		return traversal.InRegister(ReturnRegister), true
	}
	if v.HasAddress {
		return traversal.AtAddress(v.Address + ectx.LoadBias), true
	}

	loc := v.Location
	switch loc.Kind {
	case dwarfgraph.LocationAddress:
		return traversal.AtAddress(loc.Address + ectx.LoadBias), true
	case dwarfgraph.LocationFrameOffset:
		if ectx.FrameBase == 0 {
			return traversal.Location{}, false
		}
		addr, ok := safe.OffsetAddr(ectx.FrameBase, loc.Offset)
		return traversal.AtAddress(addr), ok
	case dwarfgraph.LocationRegister:
		return traversal.InRegister(RegisterName(loc.Register)), true
	case dwarfgraph.LocationRegisterOffset:
		name := RegisterName(loc.Register)
		base, ok := ectx.Registers[name]
		if !ok {
			if ectx.Memory == nil {
				return traversal.Location{}, false
			}
			var err error
			base, err = ectx.Memory.ReadRegister(name, ectx.ThreadID)
			if err != nil {
				return traversal.Location{}, false
			}
		}
		addr, ok := safe.OffsetAddr(base, loc.Offset)
		return traversal.AtAddress(addr), ok
	case dwarfgraph.LocationNone, dwarfgraph.LocationFrameCFA:
	}
	return traversal.Location{}, false
}
