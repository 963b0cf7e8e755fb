// Package symtab derives variable and type descriptors from a linked debug
// entry graph. The descriptors are what the traversal engine walks.
package symtab

import "github.com/coral-mesh/varscope/internal/safe"

// DefaultPointerSize is the pointer width assumed for 64-bit targets.
const DefaultPointerSize = 8

// Function is a function with code and the descriptors of its frame.
type Function struct {
	Name        string
	MangledName string
	Filename    string
	LowPC       uint64
	HighPC      uint64
	IsMember    bool

	Params []*Variable
	Locals []*Variable
	// Return is nil for functions returning void.
	Return *Variable
}

// Contains reports whether pc falls inside the function's code.
func (f *Function) Contains(pc uint64) bool {
	return pc >= f.LowPC && pc < f.HighPC
}

// Program is the descriptor table of one binary.
type Program struct {
	PointerSize int

	types  []*Type
	opaque *Type

	globals       []*Variable
	globalsByName map[string]*Variable

	functions       []*Function
	functionsByName map[string]*Function

	typesByName map[string][]*Type

	highestGlobal uint64
}

func newProgram() *Program {
	return &Program{
		PointerSize:     DefaultPointerSize,
		opaque:          &Type{ID: NoType, Kind: KindOpaque},
		globalsByName:   make(map[string]*Variable),
		functionsByName: make(map[string]*Function),
		typesByName:     make(map[string][]*Type),
	}
}

// Type returns the type addressed by id. NoType and unknown ids yield the
// shared opaque type.
func (p *Program) Type(id TypeID) *Type {
	if id <= NoType || int(id) > len(p.types) {
		return p.opaque
	}
	return p.types[id-1]
}

// Types returns every type in the arena.
func (p *Program) Types() []*Type { return p.types }

// TypesNamed returns every type with the given name.
func (p *Program) TypesNamed(name string) []*Type { return p.typesByName[name] }

// Global returns the first global with the given name.
func (p *Program) Global(name string) *Variable { return p.globalsByName[name] }

// Globals returns every global and static member variable in declaration
// order.
func (p *Program) Globals() []*Variable { return p.globals }

// Function returns the first function with the given name.
func (p *Program) Function(name string) *Function { return p.functionsByName[name] }

// Functions returns every function with code.
func (p *Program) Functions() []*Function { return p.functions }

// FunctionAt returns the function whose code contains pc.
func (p *Program) FunctionAt(pc uint64) *Function {
	for _, f := range p.functions {
		if f.Contains(pc) {
			return f
		}
	}
	return nil
}

// HighestGlobal is the end address of the highest global.
func (p *Program) HighestGlobal() uint64 { return p.highestGlobal }

// ElementSize is the distance between consecutive elements of a sequence
// with levelsBelow pointer levels left to dereference.
func (p *Program) ElementSize(v *Variable, levelsBelow int) int64 {
	if levelsBelow > 1 {
		return int64(p.PointerSize)
	}
	if size := p.Type(v.EffectiveType()).ByteSize; size > 0 {
		return size
	}
	return 1
}

// SizeOf is the number of bytes the variable itself occupies.
func (p *Program) SizeOf(v *Variable) int64 {
	switch {
	case v.StaticArray:
		size, ok := safe.MulLen(v.ElementCount(), uint64(p.ElementSize(v, v.PtrLevels)))
		if !ok {
			return 0
		}
		n, _ := safe.Uint64ToInt64(size)
		return n
	case v.PtrLevels > 0:
		return int64(p.PointerSize)
	}
	return p.Type(v.EffectiveType()).ByteSize
}

func (p *Program) addType(t *Type) TypeID {
	p.types = append(p.types, t)
	t.ID = TypeID(len(p.types))
	if t.Name != "" {
		p.typesByName[t.Name] = append(p.typesByName[t.Name], t)
	}
	return t.ID
}

func (p *Program) addGlobal(v *Variable) {
	p.globals = append(p.globals, v)
	if _, ok := p.globalsByName[v.Name]; !ok {
		p.globalsByName[v.Name] = v
	}
	if end := v.Address + uint64(max(p.SizeOf(v), 1)); end > p.highestGlobal {
		p.highestGlobal = end
	}
}

func (p *Program) addFunction(f *Function) {
	p.functions = append(p.functions, f)
	if _, ok := p.functionsByName[f.Name]; !ok {
		p.functionsByName[f.Name] = f
	}
}
