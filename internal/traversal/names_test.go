package traversal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameStack(t *testing.T) {
	tests := []struct {
		name  string
		parts []namePart
		want  string
	}{
		{"root", []namePart{{partRoot, "g"}}, "g"},
		{"member", []namePart{{partRoot, "p"}, {partMember, "x"}}, "p.x"},
		{"deref", []namePart{{partRoot, "q"}, {partDeref, ""}}, "q[0]"},
		{"deref then member", []namePart{{partRoot, "head"}, {partDeref, ""}, {partMember, "next"}}, "head->next"},
		{"sequence then member", []namePart{{partRoot, "arr"}, {partSequence, ""}, {partMember, "x"}}, "arr[].x"},
		{"double deref", []namePart{{partRoot, "pp"}, {partDeref, ""}, {partDeref, ""}}, "pp[0][0]"},
		{
			"chain",
			[]namePart{{partRoot, "head"}, {partDeref, ""}, {partMember, "next"}, {partDeref, ""}, {partMember, "val"}},
			"head->next->val",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n nameStack
			for _, p := range tt.parts {
				n.push(p.kind, p.text)
			}
			assert.Equal(t, tt.want, n.String())
		})
	}
}

func TestNameStack_TruncateUndoesArrow(t *testing.T) {
	var n nameStack
	n.push(partRoot, "head")
	n.push(partDeref, "")
	mark := n.push(partMember, "val")
	assert.Equal(t, "head->val", n.String())

	n.truncate(mark)
	assert.Equal(t, "head[0]", n.String())
}
