package symtab

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/errors"
)

// maxChainLength bounds modifier and typedef chains; longer chains only
// come from cyclic, corrupt input and are treated as opaque.
const maxChainLength = 64

// flattenLimit is the exclusive upper bound below which fixed array members
// get per-element descriptors.
const flattenLimit = 10

type typeKey struct {
	ref  dwarfgraph.Ref
	name string
}

type builder struct {
	g      *dwarfgraph.Graph
	prog   *Program
	logger zerolog.Logger

	memo        map[typeKey]TypeID
	definitions map[string]dwarfgraph.Ref
	seenGlobals map[string]struct{}
}

// Build derives the descriptor table from a linked graph.
func Build(g *dwarfgraph.Graph, logger zerolog.Logger) (prog *Program, err error) {
	if g == nil {
		return nil, fmt.Errorf("failed to build descriptors: nil graph")
	}
	logger = logger.With().Str("component", "symtab").Logger()

	b := &builder{
		g:           g,
		prog:        newProgram(),
		logger:      logger,
		memo:        make(map[typeKey]TypeID),
		definitions: make(map[string]dwarfgraph.Ref),
		seenGlobals: make(map[string]struct{}),
	}

	defer errors.RecoverViolation(&err)

	b.indexDefinitions()
	g.Each(b.visitEntry)

	logger.Debug().
		Int("types", len(b.prog.types)).
		Int("globals", len(b.prog.globals)).
		Int("functions", len(b.prog.functions)).
		Msg("Built descriptor table")

	return b.prog, nil
}

// indexDefinitions maps collection names to their defining entry so that
// forward declarations from other compile units can be completed.
func (b *builder) indexDefinitions() {
	b.g.Each(func(r dwarfgraph.Ref, e *dwarfgraph.Entry) {
		c, ok := e.Payload.(*dwarfgraph.Collection)
		if !ok || c.IsDeclaration || c.Name == "" {
			return
		}
		if _, exists := b.definitions[c.Name]; !exists {
			b.definitions[c.Name] = r
		}
	})
}

func (b *builder) visitEntry(r dwarfgraph.Ref, e *dwarfgraph.Entry) {
	switch p := e.Payload.(type) {
	case *dwarfgraph.Variable:
		b.addGlobal(r, p)
	case *dwarfgraph.Function:
		b.addFunction(p)
	case *dwarfgraph.Collection:
		if !p.IsDeclaration && p.Name != "" {
			b.collectionType(r, p)
		}
	case *dwarfgraph.BaseType, *dwarfgraph.Modifier, *dwarfgraph.Member,
		*dwarfgraph.Enumerator, *dwarfgraph.FormalParameter, *dwarfgraph.CompileUnit,
		*dwarfgraph.FunctionType, *dwarfgraph.ArrayType, *dwarfgraph.ArraySubrange,
		*dwarfgraph.Typedef, *dwarfgraph.Inheritance, *dwarfgraph.Namespace:
		// Reached through variables and collections.
	default:
		panic(errors.Violation(dwarfgraph.InvariantTagDispatch,
			"entry %#x has unhandled payload %T", e.ID, e.Payload))
	}
}

func (b *builder) addGlobal(r dwarfgraph.Ref, v *dwarfgraph.Variable) {
	if v.IsDeclaration || v.IsArtificial || v.Name == "" {
		return
	}
	addr, ok := v.GlobalAddr()
	if !ok {
		return
	}

	// The declaration took over this definition's address.
	if v.SpecificationID != 0 {
		if target := b.g.Lookup(v.SpecificationID); target != nil {
			if _, isVar := target.Payload.(*dwarfgraph.Variable); isVar {
				return
			}
		}
	}

	scope := ScopeGlobal
	name := v.Name
	switch parent := b.g.Entry(b.g.Parent(r)); {
	case parent == nil:
	case parent.Tag() == dwarfgraph.TagFunction:
		// Function-scope statics are locals of that function.
		return
	case parent.Tag() == dwarfgraph.TagCollection:
		scope = ScopeStaticMember
		name = parent.Payload.(*dwarfgraph.Collection).Name + "::" + v.Name
	}
	if v.IsStaticMember && scope == ScopeGlobal {
		scope = ScopeStaticMember
		if owner := b.memberOwner(v.SpecificationID); owner != "" {
			name = owner + "::" + v.Name
		}
	}

	key := fmt.Sprintf("%s@%#x", name, addr)
	if _, dup := b.seenGlobals[key]; dup {
		return
	}
	b.seenGlobals[key] = struct{}{}

	desc := b.describe(name, v.Type, v.TypeID)
	desc.Scope = scope
	desc.Address = addr
	desc.HasAddress = true
	desc.HasConst = v.HasConst
	desc.ConstValue = v.ConstValue
	b.prog.addGlobal(desc)
}

// memberOwner names the collection declaring the member a static
// definition points at.
func (b *builder) memberOwner(specID uint64) string {
	ref, ok := b.g.Resolve(specID)
	if !ok {
		return ""
	}
	parent := b.g.Entry(b.g.Parent(ref))
	if parent == nil {
		return ""
	}
	if c, ok := parent.Payload.(*dwarfgraph.Collection); ok {
		return c.Name
	}
	return ""
}

func (b *builder) addFunction(f *dwarfgraph.Function) {
	if f.IsDeclaration || f.Name == "" || f.LowPC == 0 || f.HighPC == 0 {
		return
	}

	fn := &Function{
		Name:        f.Name,
		MangledName: f.MangledName,
		Filename:    f.Filename,
		LowPC:       f.LowPC,
		HighPC:      f.HighPC,
		IsMember:    f.IsMember,
	}

	for _, r := range f.Params {
		p, ok := b.g.Entry(r).Payload.(*dwarfgraph.FormalParameter)
		if !ok {
			continue
		}
		v := b.describe(p.Name, p.Type, p.TypeID)
		v.Scope = ScopeParameter
		v.Owner = f.Name
		v.Location = p.Location
		v.IsThis = p.Name == "this"
		fn.Params = append(fn.Params, v)
	}

	for _, r := range f.Locals {
		l, ok := b.g.Entry(r).Payload.(*dwarfgraph.Variable)
		if !ok || l.Name == "" {
			continue
		}
		v := b.describe(l.Name, l.Type, l.TypeID)
		v.Scope = ScopeLocal
		v.Owner = f.Name
		v.Location = l.Location
		v.HasConst = l.HasConst
		v.ConstValue = l.ConstValue
		if addr, ok := l.GlobalAddr(); ok {
			v.Address = addr
			v.HasAddress = true
		}
		fn.Locals = append(fn.Locals, v)
	}

	if f.ReturnTypeID != 0 {
		ret := b.describe("return", f.ReturnType, f.ReturnTypeID)
		ret.Scope = ScopeReturn
		ret.Owner = f.Name
		fn.Return = ret
	}

	b.prog.addFunction(fn)
}

// chain is a type reference with modifiers and typedefs peeled off.
type chain struct {
	ptrLevels   int
	refLevels   int
	static      bool
	bounds      []uint64
	isConst     bool
	base        dwarfgraph.Ref
	typedefName string
	opaque      bool
}

func (b *builder) strip(r dwarfgraph.Ref, rawID uint64) chain {
	var c chain
	if r == dwarfgraph.NoRef {
		c.opaque = rawID != 0
		return c
	}

	for range maxChainLength {
		e := b.g.Entry(r)
		var next dwarfgraph.Ref
		var nextID uint64

		switch p := e.Payload.(type) {
		case *dwarfgraph.Modifier:
			switch {
			case p.Kind == dwarfgraph.ModifierPointer:
				c.ptrLevels++
				c.typedefName = ""
			case p.Kind.Indirects():
				if c.ptrLevels == 0 {
					c.refLevels++
				} else {
					c.ptrLevels++
				}
				c.typedefName = ""
			case p.Kind == dwarfgraph.ModifierConst:
				if c.ptrLevels == 0 && c.refLevels == 0 {
					c.isConst = true
				}
			}
			next, nextID = p.Target, p.TargetID

		case *dwarfgraph.Typedef:
			if c.typedefName == "" {
				c.typedefName = p.Name
			}
			next, nextID = p.Target, p.TargetID

		case *dwarfgraph.ArrayType:
			// Only an array at the top of the chain is a static array; an
			// array below a pointer is read as its element type.
			if c.ptrLevels == 0 && c.refLevels == 0 && !c.static {
				c.static = true
				c.ptrLevels++
				c.bounds = b.bounds(p)
				c.typedefName = ""
			}
			next, nextID = p.ElementType, p.ElementTypeID

		case *dwarfgraph.BaseType, *dwarfgraph.Collection, *dwarfgraph.FunctionType:
			c.base = r
			return c

		default:
			c.opaque = true
			return c
		}

		if next == dwarfgraph.NoRef {
			c.opaque = nextID != 0
			return c
		}
		r = next
	}

	b.logger.Debug().Msg("Type chain too long, treating as opaque")
	c.opaque = true
	return c
}

func (b *builder) bounds(a *dwarfgraph.ArrayType) []uint64 {
	bounds := make([]uint64, 0, len(a.Subranges))
	for _, r := range a.Subranges {
		s, ok := b.g.Entry(r).Payload.(*dwarfgraph.ArraySubrange)
		if !ok {
			continue
		}
		if s.HasUpperBound {
			bounds = append(bounds, s.UpperBound)
		} else {
			bounds = append(bounds, 0)
		}
	}
	if len(bounds) == 0 {
		bounds = append(bounds, 0)
	}
	return bounds
}

// describe builds the descriptor for a variable of the given type.
func (b *builder) describe(name string, typeRef dwarfgraph.Ref, rawID uint64) *Variable {
	c := b.strip(typeRef, rawID)
	v := &Variable{
		Name:        name,
		PtrLevels:   c.ptrLevels,
		RefLevels:   c.refLevels,
		StaticArray: c.static,
		Bounds:      c.bounds,
		IsConst:     c.isConst,
	}
	v.Type = b.typeFor(c)
	v.CharBase = b.prog.Type(v.Type).Kind.IsChar()
	v.IsString = v.CharBase && c.ptrLevels > 0
	return v
}

func (b *builder) typeFor(c chain) TypeID {
	if c.opaque {
		return NoType
	}
	if c.base == dwarfgraph.NoRef {
		return b.voidType()
	}

	switch p := b.g.Entry(c.base).Payload.(type) {
	case *dwarfgraph.BaseType:
		name := c.typedefName
		if name == "" {
			name = p.Name
		}
		key := typeKey{ref: c.base, name: name}
		if id, ok := b.memo[key]; ok {
			return id
		}
		id := b.prog.addType(&Type{
			Kind:     baseKind(p),
			Name:     name,
			ByteSize: p.ByteSize,
			ref:      c.base,
		})
		b.memo[key] = id
		return id

	case *dwarfgraph.Collection:
		return b.collectionType(c.base, p)

	case *dwarfgraph.FunctionType:
		key := typeKey{ref: c.base}
		if id, ok := b.memo[key]; ok {
			return id
		}
		id := b.prog.addType(&Type{Kind: KindFunction, Name: c.typedefName, ref: c.base})
		b.memo[key] = id
		return id
	}
	return NoType
}

func (b *builder) voidType() TypeID {
	key := typeKey{ref: dwarfgraph.NoRef, name: "void"}
	if id, ok := b.memo[key]; ok {
		return id
	}
	id := b.prog.addType(&Type{Kind: KindVoid, Name: "void"})
	b.memo[key] = id
	return id
}

func (b *builder) collectionType(r dwarfgraph.Ref, c *dwarfgraph.Collection) TypeID {
	incomplete := false
	if c.IsDeclaration && len(c.Members) == 0 {
		if def, ok := b.definitions[c.Name]; ok {
			r = def
			c = b.g.Entry(def).Payload.(*dwarfgraph.Collection)
		} else {
			incomplete = true
		}
	}

	key := typeKey{ref: r}
	if id, ok := b.memo[key]; ok {
		return id
	}

	t := &Type{
		Kind:       collectionKind(c.Kind),
		Name:       c.Name,
		ByteSize:   c.ByteSize,
		Incomplete: incomplete,
		ref:        r,
	}
	id := b.prog.addType(t)
	// Registered before members so self-references resolve to this type.
	b.memo[key] = id

	if c.Kind == dwarfgraph.CollectionEnum {
		for _, m := range c.Members {
			if en, ok := b.g.Entry(m).Payload.(*dwarfgraph.Enumerator); ok {
				t.Enumerators = append(t.Enumerators, Enumerator{Name: en.Name, Value: en.Value})
			}
		}
		return id
	}

	for _, m := range c.Members {
		member, ok := b.g.Entry(m).Payload.(*dwarfgraph.Member)
		if !ok {
			continue
		}
		t.Members = append(t.Members, b.memberVariable(t, member))
	}

	for _, s := range c.StaticMembers {
		switch p := b.g.Entry(s).Payload.(type) {
		case *dwarfgraph.Member:
			v := b.describe(p.Name, p.Type, p.TypeID)
			v.Scope = ScopeStaticMember
			v.Owner = t.Name
			v.IsDeclaration = p.IsDeclaration
			v.HasConst = p.HasConst
			v.ConstValue = p.ConstValue
			t.StaticMembers = append(t.StaticMembers, v)
		case *dwarfgraph.Variable:
			v := b.describe(p.Name, p.Type, p.TypeID)
			v.Scope = ScopeStaticMember
			v.Owner = t.Name
			v.IsDeclaration = p.IsDeclaration
			if addr, ok := p.GlobalAddr(); ok {
				v.Address = addr
				v.HasAddress = true
			}
			t.StaticMembers = append(t.StaticMembers, v)
		}
	}

	for _, s := range c.Superclasses {
		inh, ok := b.g.Entry(s).Payload.(*dwarfgraph.Inheritance)
		if !ok {
			continue
		}
		super := b.typeFor(b.strip(inh.Type, inh.TypeID))
		if super == NoType {
			continue
		}
		t.Superclasses = append(t.Superclasses, Superclass{Type: super, Offset: inh.Offset})
	}

	return id
}

func (b *builder) memberVariable(owner *Type, m *dwarfgraph.Member) *Variable {
	v := b.describe(m.Name, m.Type, m.TypeID)
	v.Scope = ScopeMember
	v.Owner = owner.Name
	v.Offset = m.Offset
	v.HasConst = m.HasConst
	v.ConstValue = m.ConstValue
	v.IsDeclaration = m.IsDeclaration

	if v.StaticArray && !v.IsString && len(v.Bounds) == 1 && v.Bounds[0] < flattenLimit {
		stride := b.prog.ElementSize(v, v.PtrLevels)
		for i := uint64(0); i <= v.Bounds[0]; i++ {
			elem := *v
			elem.Name = fmt.Sprintf("%s[%d]", m.Name, i)
			elem.StaticArray = false
			elem.Bounds = nil
			elem.PtrLevels--
			elem.Offset = m.Offset + int64(i)*stride
			elem.Flattened = nil
			v.Flattened = append(v.Flattened, &elem)
		}
	}
	return v
}

func collectionKind(k dwarfgraph.CollectionKind) Kind {
	switch k {
	case dwarfgraph.CollectionClass:
		return KindClass
	case dwarfgraph.CollectionUnion:
		return KindUnion
	case dwarfgraph.CollectionEnum:
		return KindEnum
	}
	return KindStruct
}
