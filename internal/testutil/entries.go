package testutil

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/symtab"
)

// idStep separates top-level entries. Children of an entry take the IDs
// directly after their parent, so a reserved entry keeps its children
// contiguous no matter when it is defined.
const idStep = 0x100

// Field is a struct member for Entries.Struct.
type Field struct {
	Name   string
	Type   uint64
	Offset int64
}

// Local is a parameter or local variable for Entries.Function. Offset is
// relative to the frame base.
type Local struct {
	Name       string
	Type       uint64
	Offset     int64
	Artificial bool
}

// Entries assembles ID-sorted debug entries for one compile unit. Methods
// return the ID of the entry they add, for use as a type reference.
type Entries struct {
	list []dwarfgraph.Entry
	next uint64
}

// NewEntries starts a compile unit named filename.
func NewEntries(filename string) *Entries {
	b := &Entries{next: idStep}
	b.put(b.Reserve(), 0, &dwarfgraph.CompileUnit{Filename: filename})
	return b
}

// Reserve allocates a top-level ID to be defined later, for self-referential
// types.
func (b *Entries) Reserve() uint64 {
	id := b.next
	b.next += idStep
	return id
}

func (b *Entries) put(id uint64, level int, p dwarfgraph.Payload) uint64 {
	b.list = append(b.list, dwarfgraph.Entry{ID: id, Level: level, Payload: p})
	return id
}

// Add appends a top-level entry.
func (b *Entries) Add(p dwarfgraph.Payload) uint64 {
	return b.put(b.Reserve(), 1, p)
}

// AddChildren appends a top-level entry followed by its children.
func (b *Entries) AddChildren(p dwarfgraph.Payload, children ...dwarfgraph.Payload) uint64 {
	return b.Define(b.Reserve(), p, children...)
}

// Define places a top-level entry at a reserved ID followed by its children.
func (b *Entries) Define(id uint64, p dwarfgraph.Payload, children ...dwarfgraph.Payload) uint64 {
	b.put(id, 1, p)
	for i, c := range children {
		b.put(id+uint64(i)+1, 2, c)
	}
	return id
}

// Base adds a base type.
func (b *Entries) Base(name string, size int64, encoding int) uint64 {
	return b.Add(&dwarfgraph.BaseType{Name: name, ByteSize: size, Encoding: encoding})
}

// Int adds a 4-byte signed int.
func (b *Entries) Int() uint64 { return b.Base("int", 4, dwarfgraph.EncodingSigned) }

// Char adds a 1-byte char.
func (b *Entries) Char() uint64 { return b.Base("char", 1, dwarfgraph.EncodingSignedChar) }

// Double adds an 8-byte double.
func (b *Entries) Double() uint64 { return b.Base("double", 8, dwarfgraph.EncodingFloat) }

// Pointer adds a pointer to target.
func (b *Entries) Pointer(target uint64) uint64 {
	return b.Add(&dwarfgraph.Modifier{Kind: dwarfgraph.ModifierPointer, TargetID: target})
}

// Reference adds a C++ reference to target.
func (b *Entries) Reference(target uint64) uint64 {
	return b.Add(&dwarfgraph.Modifier{Kind: dwarfgraph.ModifierReference, TargetID: target})
}

// Const adds a const qualifier of target.
func (b *Entries) Const(target uint64) uint64 {
	return b.Add(&dwarfgraph.Modifier{Kind: dwarfgraph.ModifierConst, TargetID: target})
}

// Typedef adds a typedef of target.
func (b *Entries) Typedef(name string, target uint64) uint64 {
	return b.Add(&dwarfgraph.Typedef{Name: name, TargetID: target})
}

// Array adds a fixed array of elem with the given upper bounds.
func (b *Entries) Array(elem uint64, upperBounds ...uint64) uint64 {
	subranges := make([]dwarfgraph.Payload, 0, len(upperBounds))
	for _, ub := range upperBounds {
		subranges = append(subranges, &dwarfgraph.ArraySubrange{UpperBound: ub, HasUpperBound: true})
	}
	return b.AddChildren(&dwarfgraph.ArrayType{ElementTypeID: elem}, subranges...)
}

// Struct adds a struct with the given members.
func (b *Entries) Struct(name string, size int64, fields ...Field) uint64 {
	return b.StructAt(b.Reserve(), name, size, fields...)
}

// StructAt defines a struct at a reserved ID.
func (b *Entries) StructAt(id uint64, name string, size int64, fields ...Field) uint64 {
	members := make([]dwarfgraph.Payload, 0, len(fields))
	for _, f := range fields {
		members = append(members, &dwarfgraph.Member{
			Name:      f.Name,
			TypeID:    f.Type,
			Offset:    f.Offset,
			HasOffset: true,
		})
	}
	return b.Define(id, &dwarfgraph.Collection{
		Kind:     dwarfgraph.CollectionStruct,
		Name:     name,
		ByteSize: size,
	}, members...)
}

// Global adds a global variable at a static address.
func (b *Entries) Global(name string, typ uint64, addr uint64) uint64 {
	return b.Add(&dwarfgraph.Variable{
		Name:       name,
		TypeID:     typ,
		IsExternal: true,
		Location:   dwarfgraph.Location{Kind: dwarfgraph.LocationAddress, Address: addr},
	})
}

// Function adds a function with frame-relative parameters and locals.
func (b *Entries) Function(name string, ret uint64, lowPC, highPC uint64, params []Local, locals []Local) uint64 {
	children := make([]dwarfgraph.Payload, 0, len(params)+len(locals))
	for _, p := range params {
		children = append(children, &dwarfgraph.FormalParameter{
			Name:         p.Name,
			TypeID:       p.Type,
			IsArtificial: p.Artificial,
			Location:     dwarfgraph.Location{Kind: dwarfgraph.LocationFrameOffset, Offset: p.Offset},
		})
	}
	for _, l := range locals {
		children = append(children, &dwarfgraph.Variable{
			Name:     l.Name,
			TypeID:   l.Type,
			Location: dwarfgraph.Location{Kind: dwarfgraph.LocationFrameOffset, Offset: l.Offset},
		})
	}
	return b.AddChildren(&dwarfgraph.Function{
		Name:         name,
		ReturnTypeID: ret,
		LowPC:        lowPC,
		HighPC:       highPC,
		IsExternal:   true,
		FrameBase:    dwarfgraph.Location{Kind: dwarfgraph.LocationFrameCFA},
	}, children...)
}

// List returns the ID-sorted entries.
func (b *Entries) List() []dwarfgraph.Entry {
	out := make([]dwarfgraph.Entry, len(b.list))
	copy(out, b.list)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Graph links the entries.
func (b *Entries) Graph(t *testing.T) *dwarfgraph.Graph {
	t.Helper()
	g, err := dwarfgraph.Build(b.List(), NewTestLogger(t))
	require.NoError(t, err)
	return g
}

// Program links the entries and derives the descriptor table.
func (b *Entries) Program(t *testing.T) *symtab.Program {
	t.Helper()
	prog, err := symtab.Build(b.Graph(t), NewTestLogger(t))
	require.NoError(t, err)
	return prog
}
