package traversal

import "strings"

type partKind int

const (
	partRoot partKind = iota
	partMember
	// partDeref is a single-object dereference, shown as "[0]" or, before
	// a member, as "->".
	partDeref
	partSequence
)

type namePart struct {
	kind partKind
	text string
}

// nameStack builds qualified names from components pushed and popped as
// the walk descends, rendering the string only when a record is emitted.
type nameStack struct {
	parts []namePart
}

func (n *nameStack) push(kind partKind, text string) int {
	mark := len(n.parts)
	n.parts = append(n.parts, namePart{kind: kind, text: text})
	return mark
}

func (n *nameStack) truncate(mark int) {
	n.parts = n.parts[:mark]
}

func (n *nameStack) String() string {
	var b strings.Builder
	for i, p := range n.parts {
		switch p.kind {
		case partRoot:
			b.WriteString(p.text)
		case partMember:
			if i > 0 && n.parts[i-1].kind == partDeref {
				b.WriteString("->")
			} else if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(p.text)
		case partDeref:
			if i+1 < len(n.parts) && n.parts[i+1].kind == partMember {
				continue
			}
			b.WriteString("[0]")
		case partSequence:
			b.WriteString("[]")
		}
	}
	return b.String()
}
