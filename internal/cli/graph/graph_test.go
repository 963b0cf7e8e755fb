package graph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/testutil"
)

// listEntries describes:
//
//	struct Node { int value; struct Node *next; };
//	struct Node *head; int arr[3]; int **pp;
//	int sum(struct Node *n) { int total; ... }
func listEntries() *testutil.Entries {
	b := testutil.NewEntries("list.c")
	intT := b.Int()
	node := b.Reserve()
	nodePtr := b.Pointer(node)
	b.StructAt(node, "Node", 16,
		testutil.Field{Name: "value", Type: intT, Offset: 0},
		testutil.Field{Name: "next", Type: nodePtr, Offset: 8},
	)
	b.Global("head", nodePtr, 0x601000)
	b.Global("arr", b.Array(intT, 2), 0x601010)
	b.Global("pp", b.Pointer(b.Pointer(intT)), 0x601020)
	b.Function("sum", intT, 0x1000, 0x1080,
		[]testutil.Local{{Name: "n", Type: nodePtr, Offset: -24}},
		[]testutil.Local{{Name: "total", Type: intT, Offset: -20}},
	)
	return b
}

func global(t *testing.T, prog *symtab.Program, name string) *symtab.Variable {
	t.Helper()
	v := prog.Global(name)
	require.NotNil(t, v, name)
	return v
}

func TestDeclared(t *testing.T) {
	prog := listEntries().Program(t)

	tests := []struct {
		name string
		want string
	}{
		{"head", "struct Node *"},
		{"arr", "int[3]"},
		{"pp", "int **"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, declared(prog, global(t, prog, tt.name)))
		})
	}
}

func TestRows(t *testing.T) {
	prog := listEntries().Program(t)

	t.Run("functions", func(t *testing.T) {
		rows := functionRows(prog).([]FunctionRow)
		require.Len(t, rows, 1)
		assert.Equal(t, FunctionRow{
			Name:   "sum",
			File:   "list.c",
			LowPC:  "0x1000",
			HighPC: "0x1080",
			Params: 1,
			Locals: 1,
			Return: "int",
		}, rows[0])
	})

	t.Run("globals", func(t *testing.T) {
		rows := globalRows(prog).([]GlobalRow)
		require.Len(t, rows, 3)
		byName := make(map[string]GlobalRow, len(rows))
		for _, r := range rows {
			byName[r.Name] = r
		}
		assert.Equal(t, GlobalRow{Name: "head", Type: "struct Node *", Address: "0x601000", Scope: "global"}, byName["head"])
		assert.Equal(t, "0x601010", byName["arr"].Address)
	})

	t.Run("types", func(t *testing.T) {
		rows := typeRows(prog).([]TypeRow)
		var node *TypeRow
		for i := range rows {
			if rows[i].Name == "Node" {
				node = &rows[i]
			}
		}
		require.NotNil(t, node)
		assert.Equal(t, "struct", node.Kind)
		assert.Equal(t, int64(16), node.Size)
		assert.Equal(t, 2, node.Members)
	})
}

func TestDump(t *testing.T) {
	b := listEntries()
	g := b.Graph(t)

	var buf bytes.Buffer
	require.NoError(t, Dump(g, &buf))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, len(b.List()))
	assert.Contains(t, lines[0], `file="list.c"`)
	assert.False(t, strings.HasPrefix(lines[0], " "))

	var sawParam bool
	for _, line := range lines {
		if strings.Contains(line, `name="n"`) {
			sawParam = true
			assert.True(t, strings.HasPrefix(line, "    <2>"), line)
		}
	}
	assert.True(t, sawParam)
}
