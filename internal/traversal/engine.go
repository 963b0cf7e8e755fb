package traversal

import (
	"encoding/binary"
	"slices"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/constants"
	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/safe"
	"github.com/coral-mesh/varscope/internal/symtab"
)

// maxStringLength caps how far a string read scans for its terminator.
const maxStringLength = 4096

// Decider returns the disambiguation decision for a variable reached from a
// root in rootScope.
type Decider interface {
	Decide(v *symtab.Variable, rootScope symtab.Scope) disambig.Decision
}

// Observer learns from pointers seen non-null during a walk.
type Observer interface {
	Observe(v *symtab.Variable, nonNull, multiple bool)
}

// Options tune the walk.
type Options struct {
	// MaxStructDepth is how often one collection type may be entered per
	// root before its members are skipped.
	MaxStructDepth int
	// MaxNestingDepth limits how many collection levels are entered from
	// one root. Zero disables the limit.
	MaxNestingDepth int
	// ArrayLengthLimit caps the forward heap scan and the expansion of
	// static arrays. Zero disables the cap.
	ArrayLengthLimit int
	// FlattenArrays visits small static-array members as one variable per
	// element.
	FlattenArrays bool
	// OutputStructVars emits records for collection-typed containers too.
	OutputStructVars bool
	// DoubleAlignmentFix moves a double member back by 4 bytes when the
	// next member starts exactly 4 bytes after it.
	DoubleAlignmentFix bool
	// PointerSize overrides the program's pointer width when non-zero.
	PointerSize int
}

// DefaultOptions returns the default walk options.
func DefaultOptions() Options {
	return Options{
		MaxStructDepth:     constants.DefaultMaxStructDepth,
		ArrayLengthLimit:   constants.DefaultArrayLengthLimit,
		DoubleAlignmentFix: true,
	}
}

// Engine walks variables of one program. It holds no per-walk state and
// may be shared by sequential walks.
type Engine struct {
	prog     *symtab.Program
	decider  Decider
	observer Observer
	opts     Options
	logger   zerolog.Logger
	metrics  *Metrics
}

// NewEngine creates an engine. metrics may be nil.
func NewEngine(prog *symtab.Program, decider Decider, opts Options, logger zerolog.Logger, metrics *Metrics) *Engine {
	if opts.PointerSize == 0 {
		opts.PointerSize = prog.PointerSize
	}
	if opts.PointerSize == 0 {
		opts.PointerSize = symtab.DefaultPointerSize
	}
	return &Engine{
		prog:    prog,
		decider: decider,
		opts:    opts,
		logger:  logger.With().Str("component", "traversal").Logger(),
		metrics: metrics,
	}
}

// SetObserver enables learning. Pass nil to disable it.
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// Options returns the options in force.
func (e *Engine) Options() Options { return e.opts }

// Visit walks root stored at loc and hands every record to consume in
// pre-order. It returns Stop when the consumer stopped the walk.
func (e *Engine) Visit(ctx *ExecutionContext, root *symtab.Variable, loc Location, consume Consumer) Result {
	if ctx.Memory == nil {
		c := *ctx
		c.Memory = unmapped{}
		ctx = &c
	}
	w := &walk{
		e:         e,
		ctx:       ctx,
		consume:   consume,
		budget:    make(budget),
		rootScope: root.Scope,
	}

	var elem Element
	if loc.InRegister {
		val, err := ctx.register(loc.Register)
		if err != nil {
			e.logger.Debug().Err(err).Str("variable", root.Name).Msg("Root register not captured")
		}
		elem = Element{InRegister: true, Value: val, Allocated: err == nil, Initialized: err == nil}
	} else {
		elem = w.element(loc.Address, e.prog.SizeOf(root))
	}

	w.names.push(partRoot, root.Name)
	return w.enter(root, []Element{elem}, false)
}

// walk is the state of one root traversal.
type walk struct {
	e         *Engine
	ctx       *ExecutionContext
	consume   Consumer
	budget    budget
	names     nameStack
	rootScope symtab.Scope
	nesting   int
}

// enter starts a variable: it fixes the decision, resolves references and
// feeds the learning observer.
func (w *walk) enter(v *symtab.Variable, elems []Element, seq bool) Result {
	dec := w.e.decider.Decide(v, w.rootScope)

	if v.RefLevels > 0 {
		size := w.e.prog.SizeOf(v)
		for range v.RefLevels {
			for i := range elems {
				elems[i] = w.deref(elems[i], size)
			}
		}
	}

	if w.e.observer != nil && !v.StaticArray && v.Scope != symtab.ScopeMember && layers(v, 0, dec) > 0 {
		stride := w.e.prog.ElementSize(v, v.PtrLevels)
		for _, el := range elems {
			target, ok := w.readPointer(el)
			if !ok || !w.ctx.allocated(target, 1) {
				continue
			}
			w.e.observer.Observe(v, true, w.count(target, stride) > 1)
		}
	}

	return w.visit(v, elems, 0, dec, seq)
}

// layers is the number of indirections left to follow. The last
// indirection of a string denotes the string itself.
func layers(v *symtab.Variable, soFar int, dec disambig.Decision) int {
	n := v.PtrLevels - soFar
	if v.IsString && dec.StringLike() {
		n--
	}
	return max(n, 0)
}

func (w *walk) visit(v *symtab.Variable, elems []Element, soFar int, dec disambig.Decision, seq bool) Result {
	t := w.e.prog.Type(v.EffectiveType())
	left := layers(v, soFar, dec)

	if w.emits(v, t, soFar, left) {
		rec := Record{
			Name:     w.names.String(),
			Variable: v,
			Type:     t,
			Depth:    left,
			Sequence: seq,
			Elements: w.load(v, t, elems, left, dec),
			Repr:     disambig.ReprScalar,
			Decision: dec,
		}
		if left == 0 {
			rec.Repr = dec.Repr
		}
		w.e.metrics.record()
		if w.consume(rec) == Stop {
			return Stop
		}
	}

	if left > 0 {
		return w.dereference(v, elems, soFar, dec, seq)
	}
	if t.IsCollection() {
		return w.collection(t, elems, seq)
	}
	return Continue
}

// emits applies the suppression rules: a collection container is invisible
// unless OutputStructVars is set, and the storage of a static array is only
// shown through its elements.
func (w *walk) emits(v *symtab.Variable, t *symtab.Type, soFar, left int) bool {
	if left == 0 && t.IsCollection() && !w.e.opts.OutputStructVars {
		return false
	}
	if v.StaticArray && soFar == 0 && left > 0 {
		return false
	}
	return true
}

func (w *walk) dereference(v *symtab.Variable, elems []Element, soFar int, dec disambig.Decision, seq bool) Result {
	stride := w.e.prog.ElementSize(v, v.PtrLevels-soFar)
	var (
		out  []Element
		kind partKind
	)

	switch {
	case v.StaticArray && soFar == 0:
		n := v.ElementCount()
		if limit := uint64(w.e.opts.ArrayLengthLimit); limit > 0 && n > limit {
			w.e.metrics.truncated(TruncArrayLimit)
			n = limit
		}
		for _, el := range elems {
			for i := range n {
				out = append(out, w.element(el.Address+i*uint64(stride), stride))
			}
		}
		kind = partSequence
		seq = true

	case seq || dec.Single:
		out = make([]Element, len(elems))
		for i, el := range elems {
			out[i] = w.deref(el, stride)
		}
		kind = partDeref

	default:
		for _, el := range elems {
			target, ok := w.readPointer(el)
			if !ok {
				w.e.metrics.derefFailed()
				continue
			}
			for i := range w.count(target, stride) {
				out = append(out, w.element(target+uint64(i)*uint64(stride), stride))
			}
		}
		kind = partSequence
		seq = true
	}

	mark := w.names.push(kind, "")
	r := w.visit(v, out, soFar+1, dec, seq)
	w.names.truncate(mark)
	return r
}

func (w *walk) collection(t *symtab.Type, elems []Element, seq bool) Result {
	opts := w.e.opts
	if opts.MaxNestingDepth > 0 && w.nesting >= opts.MaxNestingDepth {
		w.truncated(TruncNestingDepth, t)
		return Continue
	}
	if !w.budget.enter(t.ID, opts.MaxStructDepth) {
		w.truncated(TruncStructDepth, t)
		return Continue
	}

	w.nesting++
	defer func() { w.nesting-- }()
	return w.members(t, elems, 0, seq)
}

func (w *walk) truncated(reason string, t *symtab.Type) {
	w.e.metrics.truncated(reason)
	w.e.logger.Debug().
		Str("reason", reason).
		Str("type", t.DisplayName()).
		Str("at", w.names.String()).
		Msg("Truncated walk")
}

// members visits the members of t, inherited ones first, at base bytes
// into every container element.
func (w *walk) members(t *symtab.Type, elems []Element, base int64, seq bool) Result {
	prog := w.e.prog
	for _, sc := range t.Superclasses {
		if w.members(prog.Type(sc.Type), elems, base+sc.Offset, seq) == Stop {
			return Stop
		}
	}

	for i, m := range t.Members {
		off := base + m.Offset
		if w.e.opts.DoubleAlignmentFix && w.isDouble(m) && i+1 < len(t.Members) && t.Members[i+1].Offset-m.Offset == 4 {
			off -= 4
		}

		if w.e.opts.FlattenArrays && len(m.Flattened) > 0 {
			if w.flattened(m, elems, off, seq) == Stop {
				return Stop
			}
			continue
		}
		if w.member(m, m.Name, elems, off, seq) == Stop {
			return Stop
		}
	}
	return Continue
}

func (w *walk) isDouble(m *symtab.Variable) bool {
	return m.PtrLevels == 0 && w.e.prog.Type(m.EffectiveType()).Kind == symtab.KindDouble
}

// flattened visits every element of a small static-array member. Each
// element is charged against the budget as if it were the first.
func (w *walk) flattened(m *symtab.Variable, elems []Element, off int64, seq bool) Result {
	id := m.EffectiveType()
	saved, tracked := w.budget[id]
	for _, f := range m.Flattened {
		if tracked {
			w.budget[id] = saved
		} else {
			delete(w.budget, id)
		}
		if w.member(f, f.Name, elems, off+f.Offset-m.Offset, seq) == Stop {
			return Stop
		}
	}
	return Continue
}

func (w *walk) member(m *symtab.Variable, name string, elems []Element, off int64, seq bool) Result {
	size := w.e.prog.SizeOf(m)
	out := make([]Element, len(elems))
	for i, el := range elems {
		addr, ok := safe.OffsetAddr(el.Address, off)
		if !ok {
			addr = 0
		}
		out[i] = w.element(addr, size)
	}

	mark := w.names.push(partMember, name)
	r := w.enter(m, out, seq)
	w.names.truncate(mark)
	return r
}

// element describes the size bytes at addr.
func (w *walk) element(addr uint64, size int64) Element {
	n := int(max(size, 1))
	return Element{
		Address:     addr,
		Allocated:   w.ctx.allocated(addr, n),
		Initialized: addr != 0 && w.ctx.Memory.IsInitialized(addr, n),
	}
}

// readPointer returns the pointer value stored in el.
func (w *walk) readPointer(el Element) (uint64, bool) {
	if el.InRegister {
		return el.Value, true
	}
	if !el.Allocated {
		return 0, false
	}
	b, err := w.ctx.Memory.ReadBytes(el.Address, w.e.opts.PointerSize)
	if err != nil {
		return 0, false
	}
	return decodePointer(b), true
}

// deref follows the pointer in el to an element of size bytes. Unreadable
// pointers yield an unallocated element at address 0 so the shape of the
// walk does not depend on memory contents.
func (w *walk) deref(el Element, size int64) Element {
	target, ok := w.readPointer(el)
	if !ok {
		w.e.metrics.derefFailed()
		return Element{}
	}
	return w.element(target, size)
}

func decodePointer(b []byte) uint64 {
	switch len(b) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// load copies elems and fills in the values shown for the record.
func (w *walk) load(v *symtab.Variable, t *symtab.Type, elems []Element, left int, dec disambig.Decision) []Element {
	out := slices.Clone(elems)
	if left == 0 && t.IsCollection() {
		return out
	}

	if left == 0 {
		switch {
		case v.IsString && dec.Repr == disambig.ReprString:
			for i := range out {
				out[i].Text = w.stringAt(v, out[i], maxStringLength)
			}
			return out
		case v.IsString && dec.Repr == disambig.ReprOneCharString:
			for i := range out {
				out[i].Text = w.stringAt(v, out[i], 1)
			}
			return out
		case dec.Repr == disambig.ReprCharAsString:
			for i := range out {
				out[i].Text = w.readString(out[i].Address, 1)
			}
			return out
		}
	}

	size := int64(w.e.opts.PointerSize)
	if left == 0 {
		size = t.ByteSize
	}
	if size <= 0 {
		return out
	}
	for i := range out {
		el := &out[i]
		switch {
		case el.InRegister && el.Allocated:
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], el.Value)
			el.Data = buf[:min(size, 8)]
		case el.Initialized:
			if b, err := w.ctx.Memory.ReadBytes(el.Address, int(size)); err == nil {
				el.Data = b
			}
		}
	}
	return out
}

// stringAt reads the string a string-typed element denotes. A char array
// holds its characters inline; a char pointer points at them.
func (w *walk) stringAt(v *symtab.Variable, el Element, limit int) string {
	if v.StaticArray && v.PtrLevels == 1 {
		return w.readString(el.Address, int(min(uint64(limit), v.ElementCount())))
	}
	target, ok := w.readPointer(el)
	if !ok || target == 0 {
		return ""
	}
	return w.readString(target, limit)
}

func (w *walk) readString(addr uint64, limit int) string {
	if addr == 0 {
		return ""
	}
	var buf []byte
	for i := range limit {
		b, err := w.ctx.Memory.ReadBytes(addr+uint64(i), 1)
		if err != nil || b[0] == 0 {
			break
		}
		buf = append(buf, b[0])
	}
	return string(buf)
}

// unmapped is the inspector used when a context carries none.
type unmapped struct{}

func (unmapped) IsAllocated(uint64, int) bool {
	return false
}

func (unmapped) IsInitialized(uint64, int) bool {
	return false
}

func (unmapped) ReadBytes(uint64, int) ([]byte, error) {
	return nil, errUnmapped
}

func (unmapped) ReadRegister(string, int) (uint64, error) {
	return 0, errUnmapped
}
