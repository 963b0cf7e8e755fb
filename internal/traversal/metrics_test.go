package traversal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/memory"
	"github.com/coral-mesh/varscope/internal/testutil"
)

func TestMetrics_CountWalk(t *testing.T) {
	b := testutil.NewEntries("list.c")
	intT := b.Int()
	node := b.Reserve()
	nodePtr := b.Pointer(node)
	b.StructAt(node, "Node", 16,
		testutil.Field{Name: "val", Type: intT, Offset: 0},
		testutil.Field{Name: "next", Type: nodePtr, Offset: 8},
	)
	b.Global("head", nodePtr, 0x601000)
	prog := b.Program(t)

	// head points at nothing readable.
	snap := memory.NewSnapshot().AddZeroRegion(0x601000, 8)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	policy := disambig.NewPolicy(disambig.Options{AllPointersSingle: true}, nil, testutil.NewTestLogger(t))
	engine := NewEngine(prog, policy, DefaultOptions(), testutil.NewTestLogger(t), m)

	head := prog.Global("head")
	got := engine.Visit(&ExecutionContext{Memory: snap}, head, AtAddress(0x601000), func(Record) Result { return Continue })
	require.Equal(t, Continue, got)

	assert.Equal(t, float64(9), promtest.ToFloat64(m.records))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.truncations.WithLabelValues(TruncStructDepth)))
	// Every next pointer below the null head is unreadable.
	assert.Equal(t, float64(4), promtest.ToFloat64(m.derefFailures))

	count, err := promtest.GatherAndCount(reg, "varscope_traversal_truncations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_CountStaticArrayCap(t *testing.T) {
	b := testutil.NewEntries("big.c")
	b.Global("grid", b.Array(b.Int(), 1<<20, 1<<20), 0x601000)
	prog := b.Program(t)
	snap := memory.NewSnapshot().AddZeroRegion(0x601000, 40)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	opts := DefaultOptions()
	opts.ArrayLengthLimit = 10
	policy := disambig.NewPolicy(disambig.Options{}, nil, testutil.NewTestLogger(t))
	engine := NewEngine(prog, policy, opts, testutil.NewTestLogger(t), m)

	var elems int
	grid := prog.Global("grid")
	engine.Visit(&ExecutionContext{Memory: snap}, grid, AtAddress(0x601000), func(r Record) Result {
		elems += len(r.Elements)
		return Continue
	})

	assert.Equal(t, 10, elems)
	assert.Equal(t, float64(1), promtest.ToFloat64(m.truncations.WithLabelValues(TruncArrayLimit)))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.record()
		m.bounds(boundsHeap)
		m.scanned(3)
		m.truncated(TruncArrayLimit)
		m.derefFailed()
	})
}
