package traversal

import "github.com/coral-mesh/varscope/internal/symtab"

// budget counts how often each collection type was entered during one root
// traversal.
type budget map[symtab.TypeID]int

// enter charges one visit of id and reports whether it is within limit.
func (b budget) enter(id symtab.TypeID, limit int) bool {
	b[id]++
	return b[id] <= limit
}
