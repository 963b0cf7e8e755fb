package dwarfgraph

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// sampleEntries is a small C program:
//
//	struct Base { int id; };
//	struct Node : Base { int val; struct Node *next; static int count; void method(); };
//	enum Color { RED, GREEN };
//	typedef struct { int x; int y; } Point;
//	int main(int argc) { int local; }
//	int table[3];
//	struct Node *g_head;
func sampleEntries() []Entry {
	return []Entry{
		{ID: 0x10, Level: 0, Payload: &CompileUnit{Filename: "main.c"}},
		{ID: 0x20, Level: 1, Payload: &BaseType{Name: "int", ByteSize: 4, Encoding: EncodingSigned}},
		{ID: 0x30, Level: 1, Payload: &Collection{Kind: CollectionStruct, Name: "Node", ByteSize: 24}},
		{ID: 0x34, Level: 2, Payload: &Inheritance{TypeID: 0x60, Offset: 0}},
		{ID: 0x38, Level: 2, Payload: &Member{Name: "val", TypeID: 0x20, Offset: 4, HasOffset: true}},
		{ID: 0x40, Level: 2, Payload: &Member{Name: "next", TypeID: 0x50, Offset: 8, HasOffset: true}},
		{ID: 0x44, Level: 2, Payload: &Member{Name: "count", TypeID: 0x20, IsExternal: true, IsDeclaration: true}},
		{ID: 0x48, Level: 2, Payload: &Function{Name: "method", IsDeclaration: true}},
		{ID: 0x4c, Level: 2, Payload: &Typedef{Name: "inner", TargetID: 0x20}},
		{ID: 0x50, Level: 1, Payload: &Modifier{Kind: ModifierPointer, TargetID: 0x30}},
		{ID: 0x60, Level: 1, Payload: &Collection{Kind: CollectionStruct, Name: "Base", ByteSize: 4}},
		{ID: 0x64, Level: 2, Payload: &Member{Name: "id", TypeID: 0x20, HasOffset: true}},
		{ID: 0x70, Level: 1, Payload: &Collection{Kind: CollectionEnum, Name: "Color", ByteSize: 4}},
		{ID: 0x74, Level: 2, Payload: &Enumerator{Name: "RED", Value: 0}},
		{ID: 0x78, Level: 2, Payload: &Enumerator{Name: "GREEN", Value: 1}},
		{ID: 0x80, Level: 1, Payload: &Function{Name: "main", ReturnTypeID: 0x20, LowPC: 0x1000, HighPC: 0x1100, IsExternal: true}},
		{ID: 0x84, Level: 2, Payload: &FormalParameter{Name: "argc", TypeID: 0x20, Location: Location{Kind: LocationFrameOffset, Offset: -20}}},
		{ID: 0x88, Level: 2, Payload: &Variable{Name: "local", TypeID: 0x20, Location: Location{Kind: LocationFrameOffset, Offset: -24}}},
		{ID: 0x90, Level: 1, Payload: &ArrayType{ElementTypeID: 0x20}},
		{ID: 0x94, Level: 2, Payload: &ArraySubrange{UpperBound: 2, HasUpperBound: true}},
		{ID: 0xa0, Level: 1, Payload: &Variable{Name: "table", TypeID: 0x90, IsExternal: true, Location: Location{Kind: LocationAddress, Address: 0x601040}}},
		{ID: 0xa8, Level: 1, Payload: &Variable{Name: "g_head", TypeID: 0x50, IsExternal: true, Location: Location{Kind: LocationAddress, Address: 0x601050}}},
		{ID: 0xb0, Level: 1, Payload: &Typedef{Name: "Point", TargetID: 0xc0}},
		{ID: 0xc0, Level: 1, Payload: &Collection{Kind: CollectionStruct, ByteSize: 8}},
		{ID: 0xc4, Level: 2, Payload: &Member{Name: "x", TypeID: 0x20, HasOffset: true}},
		{ID: 0xc8, Level: 2, Payload: &Member{Name: "y", TypeID: 0x20, Offset: 4, HasOffset: true}},
		{ID: 0xd0, Level: 1, Payload: &Variable{Name: "broken", TypeID: 0x999, Location: Location{Kind: LocationAddress, Address: 0x601060}}},
	}
}

func newSampleGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(sampleEntries(), zerolog.Nop())
	require.NoError(t, err)
	return g
}

func buildSample(t *testing.T) *Graph {
	t.Helper()
	g, err := Build(sampleEntries(), zerolog.Nop())
	require.NoError(t, err)
	return g
}

func mustLookup[T Payload](t *testing.T, g *Graph, id uint64) T {
	t.Helper()
	e := g.Lookup(id)
	require.NotNil(t, e, "entry %#x", id)
	p, ok := e.Payload.(T)
	require.True(t, ok, "entry %#x has payload %T", id, e.Payload)
	return p
}
