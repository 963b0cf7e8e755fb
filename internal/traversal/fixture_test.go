package traversal_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/memory"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/testutil"
	"github.com/coral-mesh/varscope/internal/traversal"
)

const (
	globalBase = 0x601000
	heapBase   = 0x700000
)

// collector keeps every record and optionally stops at a named one.
type collector struct {
	records []traversal.Record
	stopAt  string
}

func (c *collector) consume(r traversal.Record) traversal.Result {
	c.records = append(c.records, r)
	if c.stopAt != "" && r.Name == c.stopAt {
		return traversal.Stop
	}
	return traversal.Continue
}

func (c *collector) names() []string {
	out := make([]string, len(c.records))
	for i, r := range c.records {
		out[i] = r.Name
	}
	return out
}

func (c *collector) find(t *testing.T, name string) traversal.Record {
	t.Helper()
	for _, r := range c.records {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no record %q in %v", name, c.names())
	return traversal.Record{}
}

// walkGlobal walks one global of prog against snap.
func walkGlobal(t *testing.T, prog *symtab.Program, snap *memory.Snapshot, name string, opts traversal.Options, dopts disambig.Options) *collector {
	t.Helper()
	g := prog.Global(name)
	require.NotNil(t, g, name)

	policy := disambig.NewPolicy(dopts, nil, testutil.NewTestLogger(t))
	engine := traversal.NewEngine(prog, policy, opts, testutil.NewTestLogger(t), nil)

	c := &collector{}
	ctx := &traversal.ExecutionContext{Memory: snap}
	engine.Visit(ctx, g, traversal.AtAddress(g.Address), c.consume)
	return c
}

// nodeProgram describes:
//
//	struct Node { int val; struct Node *next; };
//	struct Node *head;
func nodeProgram(t *testing.T) *symtab.Program {
	t.Helper()
	b := testutil.NewEntries("list.c")
	intT := b.Int()
	node := b.Reserve()
	nodePtr := b.Pointer(node)
	b.StructAt(node, "Node", 16,
		testutil.Field{Name: "val", Type: intT, Offset: 0},
		testutil.Field{Name: "next", Type: nodePtr, Offset: 8},
	)
	b.Global("head", nodePtr, globalBase)
	return b.Program(t)
}

// listSnapshot links n nodes on the heap and points head at the first.
func listSnapshot(t *testing.T, n int) *memory.Snapshot {
	t.Helper()
	snap := memory.NewSnapshot().AddZeroRegion(globalBase, 8)
	if n == 0 {
		return snap
	}
	snap.AddZeroRegion(heapBase, uint64(16*n))
	require.NoError(t, snap.WriteUint64(globalBase, heapBase))
	for i := range n {
		addr := uint64(heapBase + 16*i)
		require.NoError(t, snap.WriteUint32(addr, uint32(i+1)))
		next := uint64(0)
		if i+1 < n {
			next = addr + 16
		}
		require.NoError(t, snap.WriteUint64(addr+8, next))
	}
	return snap
}
