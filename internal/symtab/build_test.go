package symtab_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/testutil"
)

func TestBuild_IndirectionLevels(t *testing.T) {
	b := testutil.NewEntries("levels.c")
	intT := b.Int()
	charT := b.Char()
	intPtr := b.Pointer(intT)
	intPtrPtr := b.Pointer(intPtr)
	constInt := b.Const(intT)
	constIntPtr := b.Pointer(constInt)
	myint := b.Typedef("myint", intT)
	myintPtr := b.Pointer(myint)
	charPtr := b.Pointer(charT)
	charPtrPtr := b.Pointer(charPtr)
	voidPtr := b.Pointer(0)
	intArr := b.Array(intT, 2)
	matrix := b.Array(intT, 1, 2)
	ptrArr := b.Array(intPtr, 3)
	charArr := b.Array(charT, 15)
	intRef := b.Reference(intT)

	b.Global("i", intT, 0x1000)
	b.Global("p", intPtr, 0x1010)
	b.Global("pp", intPtrPtr, 0x1018)
	b.Global("cp", constIntPtr, 0x1020)
	b.Global("mp", myintPtr, 0x1028)
	b.Global("s", charPtr, 0x1030)
	b.Global("argv", charPtrPtr, 0x1038)
	b.Global("vp", voidPtr, 0x1040)
	b.Global("arr", intArr, 0x1050)
	b.Global("matrix", matrix, 0x1060)
	b.Global("ptrs", ptrArr, 0x1080)
	b.Global("name", charArr, 0x10a0)
	b.Global("ref", intRef, 0x10b0)
	b.Global("c", charT, 0x10b8)

	prog := b.Program(t)

	tests := []struct {
		name      string
		ptrLevels int
		refLevels int
		static    bool
		bounds    []uint64
		isString  bool
		typeName  string
		kind      symtab.Kind
	}{
		{name: "i", typeName: "int", kind: symtab.KindInt},
		{name: "p", ptrLevels: 1, typeName: "int", kind: symtab.KindInt},
		{name: "pp", ptrLevels: 2, typeName: "int", kind: symtab.KindInt},
		{name: "cp", ptrLevels: 1, typeName: "int", kind: symtab.KindInt},
		{name: "mp", ptrLevels: 1, typeName: "myint", kind: symtab.KindInt},
		{name: "s", ptrLevels: 1, isString: true, typeName: "char", kind: symtab.KindChar},
		{name: "argv", ptrLevels: 2, isString: true, typeName: "char", kind: symtab.KindChar},
		{name: "vp", ptrLevels: 1, typeName: "void", kind: symtab.KindVoid},
		{name: "arr", ptrLevels: 1, static: true, bounds: []uint64{2}, typeName: "int", kind: symtab.KindInt},
		{name: "matrix", ptrLevels: 1, static: true, bounds: []uint64{1, 2}, typeName: "int", kind: symtab.KindInt},
		{name: "ptrs", ptrLevels: 2, static: true, bounds: []uint64{3}, typeName: "int", kind: symtab.KindInt},
		{name: "name", ptrLevels: 1, static: true, bounds: []uint64{15}, isString: true, typeName: "char", kind: symtab.KindChar},
		{name: "ref", refLevels: 1, typeName: "int", kind: symtab.KindInt},
		{name: "c", typeName: "char", kind: symtab.KindChar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := prog.Global(tt.name)
			require.NotNil(t, v)
			assert.Equal(t, symtab.ScopeGlobal, v.Scope)
			assert.Equal(t, tt.ptrLevels, v.PtrLevels)
			assert.Equal(t, tt.refLevels, v.RefLevels)
			assert.Equal(t, tt.static, v.StaticArray)
			assert.Equal(t, tt.bounds, v.Bounds)
			assert.Equal(t, tt.isString, v.IsString)

			typ := prog.Type(v.Type)
			assert.Equal(t, tt.typeName, typ.Name)
			assert.Equal(t, tt.kind, typ.Kind)
		})
	}

	assert.Equal(t, uint64(6), prog.Global("matrix").ElementCount())
	assert.Equal(t, int64(32), prog.SizeOf(prog.Global("ptrs")))
	assert.Equal(t, int64(16), prog.SizeOf(prog.Global("name")))
}

func TestBuild_DanglingTypeIsOpaque(t *testing.T) {
	b := testutil.NewEntries("dangling.c")
	b.Global("mystery", 0xdead00, 0x1000)

	prog := b.Program(t)
	v := prog.Global("mystery")
	require.NotNil(t, v)
	assert.Equal(t, symtab.NoType, v.Type)
	assert.Equal(t, symtab.KindOpaque, prog.Type(v.Type).Kind)
}

func TestBuild_Collections(t *testing.T) {
	b := testutil.NewEntries("list.c")
	intT := b.Int()
	doubleT := b.Double()
	node := b.Reserve()
	nodePtr := b.Pointer(node)
	b.StructAt(node, "Node", 16,
		testutil.Field{Name: "val", Type: intT, Offset: 0},
		testutil.Field{Name: "next", Type: nodePtr, Offset: 8},
	)
	small := b.Array(intT, 2)
	big := b.Array(intT, 31)
	b.Struct("Sample", 168,
		testutil.Field{Name: "weight", Type: doubleT, Offset: 0},
		testutil.Field{Name: "small", Type: small, Offset: 8},
		testutil.Field{Name: "big", Type: big, Offset: 20},
	)
	anon := b.Struct("", 8,
		testutil.Field{Name: "x", Type: intT, Offset: 0},
		testutil.Field{Name: "y", Type: intT, Offset: 4},
	)
	point := b.Typedef("Point", anon)
	b.Global("head", nodePtr, 0x2000)
	b.Global("origin", point, 0x2010)

	prog := b.Program(t)

	t.Run("self reference resolves to one type", func(t *testing.T) {
		head := prog.Global("head")
		require.NotNil(t, head)
		nodeT := prog.Type(head.Type)
		require.True(t, nodeT.IsCollection())
		require.Len(t, nodeT.Members, 2)

		next := nodeT.Members[1]
		assert.Equal(t, "next", next.Name)
		assert.Equal(t, symtab.ScopeMember, next.Scope)
		assert.Equal(t, "Node", next.Owner)
		assert.Equal(t, int64(8), next.Offset)
		assert.Equal(t, head.Type, next.Type)
		assert.Len(t, prog.TypesNamed("Node"), 1)
	})

	t.Run("typedef names anonymous struct", func(t *testing.T) {
		origin := prog.Global("origin")
		require.NotNil(t, origin)
		assert.Equal(t, "Point", prog.Type(origin.Type).Name)
	})

	t.Run("small fixed arrays get element descriptors", func(t *testing.T) {
		sample := prog.TypesNamed("Sample")
		require.Len(t, sample, 1)
		members := sample[0].Members
		require.Len(t, members, 3)

		smallM := members[1]
		require.Len(t, smallM.Flattened, 3)
		assert.Equal(t, "small[2]", smallM.Flattened[2].Name)
		assert.Equal(t, int64(16), smallM.Flattened[2].Offset)
		assert.Equal(t, 0, smallM.Flattened[2].PtrLevels)
		assert.False(t, smallM.Flattened[2].StaticArray)

		assert.Empty(t, members[2].Flattened)
	})
}

func TestBuild_Functions(t *testing.T) {
	b := testutil.NewEntries("shape.cc")
	intT := b.Int()
	shape := b.Struct("Shape", 8, testutil.Field{Name: "w", Type: intT})
	shapePtr := b.Pointer(shape)
	shapeRef := b.Reference(shape)

	b.Function("area", intT, 0x1000, 0x1040,
		[]testutil.Local{
			{Name: "this", Type: shapePtr, Offset: -24, Artificial: true},
			{Name: "other", Type: shapeRef, Offset: -32},
		},
		[]testutil.Local{{Name: "result", Type: intT, Offset: -20}},
	)
	b.Function("reset", 0, 0x1040, 0x1080, nil, nil)

	prog := b.Program(t)

	area := prog.Function("area")
	require.NotNil(t, area)
	assert.Equal(t, "shape.cc", area.Filename)
	assert.True(t, area.Contains(0x1000))
	assert.False(t, area.Contains(0x1040))
	assert.Same(t, area, prog.FunctionAt(0x1020))

	require.Len(t, area.Params, 2)
	this := area.Params[0]
	assert.True(t, this.IsThis)
	assert.Equal(t, symtab.ScopeParameter, this.Scope)
	assert.Equal(t, "area", this.Owner)
	assert.Equal(t, dwarfgraph.LocationFrameOffset, this.Location.Kind)
	assert.Equal(t, int64(-24), this.Location.Offset)

	other := area.Params[1]
	assert.False(t, other.IsThis)
	assert.True(t, other.IsReferenceParam())

	require.Len(t, area.Locals, 1)
	assert.Equal(t, symtab.ScopeLocal, area.Locals[0].Scope)

	require.NotNil(t, area.Return)
	assert.Equal(t, "return", area.Return.Name)
	assert.Equal(t, symtab.ScopeReturn, area.Return.Scope)

	reset := prog.Function("reset")
	require.NotNil(t, reset)
	assert.Nil(t, reset.Return)
}

func TestBuild_HighestGlobal(t *testing.T) {
	b := testutil.NewEntries("globals.c")
	intT := b.Int()
	arr := b.Array(intT, 9)
	b.Global("a", intT, 0x3000)
	b.Global("table", arr, 0x3010)

	prog := b.Program(t)
	assert.Equal(t, uint64(0x3010+40), prog.HighestGlobal())
	assert.Len(t, prog.Globals(), 2)
}

func TestBuild_NilGraph(t *testing.T) {
	_, err := symtab.Build(nil, testutil.NewTestLogger(t))
	assert.Error(t, err)
}

func TestVariable_ElementCount(t *testing.T) {
	tests := []struct {
		name     string
		variable symtab.Variable
		want     uint64
	}{
		{"scalar", symtab.Variable{}, 1},
		{"one dimension", symtab.Variable{StaticArray: true, Bounds: []uint64{9}}, 10},
		{"two dimensions", symtab.Variable{StaticArray: true, Bounds: []uint64{1, 2}}, 6},
		{"product overflows", symtab.Variable{StaticArray: true, Bounds: []uint64{1 << 40, 1 << 40}}, 0},
		{"bound at max", symtab.Variable{StaticArray: true, Bounds: []uint64{math.MaxUint64}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.variable.ElementCount())
		})
	}
}

func TestProgram_SizeOfOverflowingArray(t *testing.T) {
	b := testutil.NewEntries("huge.c")
	intT := b.Int()
	b.Global("wide", b.Array(intT, 1<<62), 0x1000)
	b.Global("square", b.Array(intT, 1<<40, 1<<40), 0x2000)
	prog := b.Program(t)

	assert.Equal(t, int64(0), prog.SizeOf(prog.Global("wide")))
	assert.Equal(t, uint64(0), prog.Global("square").ElementCount())
	assert.Equal(t, int64(0), prog.SizeOf(prog.Global("square")))
}
