// Package traversal walks variable descriptors together with target memory
// and emits one record per addressable piece of state reachable from a
// root variable.
package traversal

import (
	"errors"

	"github.com/coral-mesh/varscope/internal/symtab"
)

var errUnmapped = errors.New("no memory inspector")

// MemoryInspector answers questions about target memory. Implementations
// must never fault on unmapped addresses.
type MemoryInspector interface {
	IsAllocated(addr uint64, n int) bool
	IsInitialized(addr uint64, n int) bool
	ReadBytes(addr uint64, n int) ([]byte, error)
	ReadRegister(name string, threadID int) (uint64, error)
}

// ExecutionContext is the per-frame state of the target at the point of
// observation. It is borrowed for the duration of one Visit call.
type ExecutionContext struct {
	// FrameBase and LowestSP bound the live stack region. Every address in
	// [LowestSP, FrameBase] counts as allocated.
	FrameBase uint64
	LowestSP  uint64
	// LoadBias is added to link-time addresses of globals.
	LoadBias uint64
	ThreadID int
	// Registers holds registers captured with this frame, including the
	// value returned at function exit. They shadow the inspector's registers.
	Registers map[string]uint64
	// Frame is the function executing in this frame; nil when walking
	// globals only.
	Frame  *symtab.Function
	Memory MemoryInspector
}

// Location is where a root variable's storage starts.
type Location struct {
	Address    uint64
	InRegister bool
	Register   string
}

// AtAddress returns a memory location.
func AtAddress(addr uint64) Location {
	return Location{Address: addr}
}

// InRegister returns a register location.
func InRegister(name string) Location {
	return Location{InRegister: true, Register: name}
}

func (c *ExecutionContext) inStack(addr uint64) bool {
	return c.FrameBase != 0 && addr >= c.LowestSP && addr <= c.FrameBase
}

func (c *ExecutionContext) allocated(addr uint64, n int) bool {
	if addr == 0 {
		return false
	}
	if c.inStack(addr) {
		return true
	}
	return c.Memory.IsAllocated(addr, n)
}

func (c *ExecutionContext) register(name string) (uint64, error) {
	if v, ok := c.Registers[name]; ok {
		return v, nil
	}
	return c.Memory.ReadRegister(name, c.ThreadID)
}
