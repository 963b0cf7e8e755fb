package traversal

import (
	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/safe"
	"github.com/coral-mesh/varscope/internal/symtab"
)

// Sources of a sequence bound, used as the metrics label.
const (
	boundsGlobal = "global"
	boundsFrame  = "frame"
	boundsHeap   = "heap"
	boundsSingle = "single"
)

// count infers how many elements of stride bytes start at target. It looks
// for an enclosing declared object first: a global static array, an array
// member of a global struct, then a static array in the current frame. Heap
// memory is scanned only above the globals and outside the live stack,
// where scanning yields something meaningful. Anything else is one element
// if allocated.
func (w *walk) count(target uint64, stride int64) int {
	if target == 0 || stride <= 0 {
		return 0
	}
	if n, ok := w.globalBound(target, stride); ok {
		w.e.metrics.bounds(boundsGlobal)
		return n
	}
	if n, ok := w.frameBound(target, stride); ok {
		w.e.metrics.bounds(boundsFrame)
		return n
	}
	if !w.ctx.inStack(target) && target >= w.e.prog.HighestGlobal()+w.ctx.LoadBias {
		w.e.metrics.bounds(boundsHeap)
		return w.scanForward(target, stride)
	}
	w.e.metrics.bounds(boundsSingle)
	if w.ctx.allocated(target, int(stride)) {
		return 1
	}
	return 0
}

// within returns the number of elements between target and the end of the
// object [base, base+size).
func within(base uint64, size int64, target uint64, stride int64) (int, bool) {
	if size <= 0 || target < base || target-base >= uint64(size) {
		return 0, false
	}
	end := base + uint64(size)
	return max(int((end-target)/uint64(stride)), 1), true
}

func (w *walk) globalBound(target uint64, stride int64) (int, bool) {
	prog := w.e.prog
	for _, g := range prog.Globals() {
		if !g.HasAddress {
			continue
		}
		base := g.Address + w.ctx.LoadBias
		if g.StaticArray {
			if n, ok := within(base, prog.SizeOf(g), target, stride); ok {
				return n, true
			}
			continue
		}
		if g.PtrLevels > 0 {
			continue
		}
		if n, ok := w.memberArrayBound(g, base, target, stride); ok {
			return n, true
		}
		if target == base {
			return 1, true
		}
	}
	return 0, false
}

func (w *walk) frameBound(target uint64, stride int64) (int, bool) {
	ctx := w.ctx
	if ctx.Frame == nil || ctx.FrameBase == 0 {
		return 0, false
	}
	prog := w.e.prog
	check := func(vars []*symtab.Variable) (int, bool) {
		for _, v := range vars {
			if v.Location.Kind != dwarfgraph.LocationFrameOffset {
				continue
			}
			base, ok := safe.OffsetAddr(ctx.FrameBase, v.Location.Offset)
			if !ok {
				continue
			}
			if v.StaticArray {
				if n, ok := within(base, prog.SizeOf(v), target, stride); ok {
					return n, true
				}
				continue
			}
			if v.PtrLevels == 0 {
				if n, ok := w.memberArrayBound(v, base, target, stride); ok {
					return n, true
				}
			}
		}
		return 0, false
	}
	if n, ok := check(ctx.Frame.Locals); ok {
		return n, true
	}
	return check(ctx.Frame.Params)
}

// memberArrayBound looks for a static-array member of the struct variable
// v stored at base that contains target.
func (w *walk) memberArrayBound(v *symtab.Variable, base, target uint64, stride int64) (int, bool) {
	prog := w.e.prog
	t := prog.Type(v.EffectiveType())
	if !t.IsCollection() {
		return 0, false
	}
	for _, m := range t.Members {
		if !m.StaticArray {
			continue
		}
		mb, ok := safe.OffsetAddr(base, m.Offset)
		if !ok {
			continue
		}
		if n, ok := within(mb, prog.SizeOf(m), target, stride); ok {
			return n, true
		}
	}
	return 0, false
}

// scanForward counts allocated elements forward from target, then drops trailing
// elements with no initialized byte. The result never exceeds the forward
// count.
func (w *walk) scanForward(target uint64, stride int64) int {
	mem := w.ctx.Memory
	limit := w.e.opts.ArrayLengthLimit
	step := uint64(stride)

	n := 0
	for addr := target; mem.IsAllocated(addr, int(stride)); addr += step {
		if limit > 0 && n >= limit {
			w.e.metrics.truncated(TruncArrayLimit)
			break
		}
		n++
	}
	for n > 0 && !w.someInitialized(target+uint64(n-1)*step, stride) {
		n--
	}
	w.e.metrics.scanned(n)
	return n
}

// someInitialized treats an element as initialized when any of its bytes
// is, so partly filled structs still count.
func (w *walk) someInitialized(addr uint64, size int64) bool {
	for off := range uint64(size) {
		if w.ctx.Memory.IsInitialized(addr+off, 1) {
			return true
		}
	}
	return false
}
