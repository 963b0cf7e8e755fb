package disambig_test

import (
	"testing"

	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/testutil"
)

// listProgram describes:
//
//	struct Node { int val; struct Node *next; char tag; };
//	struct Node *head; int *counts; char *label; char grade; int total;
//	int sum(int *values, struct Node *this_node) { ... }
func listProgram(t *testing.T) *symtab.Program {
	t.Helper()
	b := testutil.NewEntries("list.c")
	intT := b.Int()
	charT := b.Char()
	intPtr := b.Pointer(intT)
	charPtr := b.Pointer(charT)
	node := b.Reserve()
	nodePtr := b.Pointer(node)
	b.StructAt(node, "Node", 24,
		testutil.Field{Name: "val", Type: intT, Offset: 0},
		testutil.Field{Name: "next", Type: nodePtr, Offset: 8},
		testutil.Field{Name: "tag", Type: charT, Offset: 16},
	)
	b.Global("head", nodePtr, 0x601000)
	b.Global("counts", intPtr, 0x601008)
	b.Global("label", charPtr, 0x601010)
	b.Global("grade", charT, 0x601018)
	b.Global("total", intT, 0x60101c)
	b.Function("sum", intPtr, 0x1000, 0x1100,
		[]testutil.Local{
			{Name: "values", Type: intPtr, Offset: -24},
			{Name: "this", Type: nodePtr, Offset: -32, Artificial: true},
		},
		[]testutil.Local{{Name: "acc", Type: intT, Offset: -20}},
	)
	return b.Program(t)
}

func member(t *testing.T, prog *symtab.Program, typeName, name string) *symtab.Variable {
	t.Helper()
	for _, ty := range prog.TypesNamed(typeName) {
		for _, m := range ty.Members {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("member %s.%s not found", typeName, name)
	return nil
}
