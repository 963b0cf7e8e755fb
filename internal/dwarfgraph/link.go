package dwarfgraph

// LinkContainment partitions the direct children of every collection,
// function and array entry, and flags static member definitions. It
// recomputes every list from scratch, so calling it twice yields the same
// graph.
func (g *Graph) LinkContainment() {
	for i := range g.entries {
		switch p := g.entries[i].Payload.(type) {
		case *Collection:
			g.linkCollection(i, p)
		case *Function:
			g.linkFunction(i, p)
		case *ArrayType:
			g.linkArray(i, p)
		case *Variable:
			g.linkStaticDefinition(p)
		case *BaseType, *Modifier, *Member, *Enumerator, *FormalParameter,
			*CompileUnit, *FunctionType, *ArraySubrange, *Typedef,
			*Inheritance, *Namespace:
			// No children to partition.
		default:
			panicUnhandled(&g.entries[i])
		}
	}
}

func (g *Graph) linkCollection(idx int, c *Collection) {
	c.Members = nil
	c.StaticMembers = nil
	c.Methods = nil
	c.Superclasses = nil

	isEnum := c.Kind == CollectionEnum
	g.children(idx, func(ref Ref, child *Entry) {
		if isEnum {
			if _, ok := child.Payload.(*Enumerator); ok {
				c.Members = append(c.Members, ref)
			}
			return
		}

		switch p := child.Payload.(type) {
		case *Member:
			// Newer compilers mark in-class static declarations with
			// DW_AT_external on a DW_TAG_member.
			if p.IsExternal {
				c.StaticMembers = append(c.StaticMembers, ref)
			} else {
				c.Members = append(c.Members, ref)
			}
		case *Variable:
			c.StaticMembers = append(c.StaticMembers, ref)
		case *Function:
			p.IsMember = true
			c.Methods = append(c.Methods, ref)
		case *Inheritance:
			c.Superclasses = append(c.Superclasses, ref)
		}
	})
}

func (g *Graph) linkFunction(idx int, f *Function) {
	f.Params = nil
	f.Locals = nil

	g.children(idx, func(ref Ref, child *Entry) {
		switch child.Payload.(type) {
		case *FormalParameter:
			f.Params = append(f.Params, ref)
		case *Variable:
			f.Locals = append(f.Locals, ref)
		}
	})
}

func (g *Graph) linkArray(idx int, a *ArrayType) {
	a.Subranges = nil

	g.children(idx, func(ref Ref, child *Entry) {
		if _, ok := child.Payload.(*ArraySubrange); ok {
			a.Subranges = append(a.Subranges, ref)
		}
	})
}

// linkStaticDefinition handles out-of-line definitions of static data. The
// compiler may point the defining variable at either a declaration variable
// (older output) or a member declaration inside the class (newer output).
func (g *Graph) linkStaticDefinition(v *Variable) {
	if v.SpecificationID == 0 {
		return
	}
	addr, hasAddr := v.GlobalAddr()
	if !hasAddr {
		return
	}
	target := g.Lookup(v.SpecificationID)
	if target == nil {
		return
	}

	switch decl := target.Payload.(type) {
	case *Variable:
		if decl.Location.Kind == LocationNone {
			decl.Location = Location{Kind: LocationAddress, Address: addr}
		}
		decl.IsDeclaration = false
		// Static members carry a mangled name, plain globals do not.
		if decl.MangledName != "" {
			decl.CouldBeGlobal = false
			decl.IsStaticMember = true
		} else {
			decl.CouldBeGlobal = true
			decl.IsStaticMember = false
		}
	case *Member:
		v.CouldBeGlobal = true
		v.IsStaticMember = true
		if v.Name == "" {
			v.Name = decl.Name
		}
		if v.TypeID == 0 {
			v.TypeID = decl.TypeID
		}
	}
}

// LinkTypes resolves every raw type ID into a Ref. IDs that do not resolve
// leave the link unset and are counted as dangling.
func (g *Graph) LinkTypes() {
	g.dangling = 0
	resolve := func(id uint64) Ref {
		if id == 0 {
			return NoRef
		}
		r, ok := g.Resolve(id)
		if !ok {
			g.dangling++
			g.logger.Debug().Uint64("type_id", id).Msg("Dangling type reference")
			return NoRef
		}
		return r
	}

	for i := range g.entries {
		switch p := g.entries[i].Payload.(type) {
		case *Modifier:
			p.Target = resolve(p.TargetID)
		case *Member:
			p.Type = resolve(p.TypeID)
		case *Function:
			p.ReturnType = resolve(p.ReturnTypeID)
		case *FormalParameter:
			p.Type = resolve(p.TypeID)
		case *FunctionType:
			p.ReturnType = resolve(p.ReturnTypeID)
		case *ArrayType:
			p.ElementType = resolve(p.ElementTypeID)
		case *Typedef:
			p.Target = resolve(p.TargetID)
		case *Variable:
			p.Type = resolve(p.TypeID)
		case *Inheritance:
			p.Type = resolve(p.TypeID)
		case *BaseType, *Collection, *Enumerator, *CompileUnit, *ArraySubrange, *Namespace:
			// No type reference.
		default:
			panicUnhandled(&g.entries[i])
		}
	}
}

// AssignFilenames gives every function the file name of the closest
// preceding compile unit.
func (g *Graph) AssignFilenames() {
	var current string
	for i := range g.entries {
		switch p := g.entries[i].Payload.(type) {
		case *CompileUnit:
			current = p.Filename
		case *Function:
			p.Filename = current
		}
	}
}

// Parent returns the enclosing entry of r: the closest preceding entry one
// level up. Top-level entries have no parent.
func (g *Graph) Parent(r Ref) Ref {
	if r == NoRef {
		return NoRef
	}
	idx := int(r) - 1
	level := g.entries[idx].Level
	for i := idx - 1; i >= 0; i-- {
		if g.entries[i].Level < level {
			if g.entries[i].Level == level-1 {
				return Ref(i + 1)
			}
			return NoRef
		}
	}
	return NoRef
}
