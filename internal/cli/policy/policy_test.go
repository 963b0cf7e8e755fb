package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/testutil"
)

func TestRows(t *testing.T) {
	const policy = `----SECTION----
globals
head
P
counts
A Node
----SECTION----
function: sum
return
A
`
	f, err := disambig.ParsePolicy(strings.NewReader(policy), testutil.NewTestLogger(t))
	require.NoError(t, err)

	rows := Rows(f)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{Section: "globals", Variable: "head", Letter: "P"}, rows[0])
	assert.Equal(t, Row{Section: "globals", Variable: "counts", Letter: "A", Type: "Node"}, rows[1])
	assert.Equal(t, "return", rows[2].Variable)
	assert.Equal(t, "A", rows[2].Letter)
}
