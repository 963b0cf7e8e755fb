package dwarfgraph

// MergeDeclarations folds declaration entries into their definitions. The
// specification pass runs first, then the abstract-origin pass; an inlined
// instance may point at an abstract entry that only gains its name through
// its own specification. Fields that are already set are never overwritten.
func (g *Graph) MergeDeclarations() {
	g.mergeSpecifications()
	g.mergeAbstractOrigins()
}

func (g *Graph) mergeSpecifications() {
	for i := range g.entries {
		switch cur := g.entries[i].Payload.(type) {
		case *Function:
			if cur.SpecificationID == 0 {
				continue
			}
			decl, ok := g.lookupPayload(cur.SpecificationID).(*Function)
			if !ok {
				continue
			}
			fillFunction(cur, decl)

		case *Collection:
			if cur.SpecificationID == 0 {
				continue
			}
			decl, ok := g.lookupPayload(cur.SpecificationID).(*Collection)
			if !ok {
				continue
			}
			if cur.Name == "" {
				cur.Name = decl.Name
			}
			// The declaration is what other entries reference, so it
			// inherits the definition's layout.
			if decl.ByteSize == 0 {
				decl.ByteSize = cur.ByteSize
			}
			if len(decl.Members) == 0 {
				decl.Members = cur.Members
			}
			if len(decl.StaticMembers) == 0 {
				decl.StaticMembers = cur.StaticMembers
			}
			if len(decl.Methods) == 0 {
				decl.Methods = cur.Methods
			}
			if len(decl.Superclasses) == 0 {
				decl.Superclasses = cur.Superclasses
			}

		case *Variable:
			if cur.IsDeclaration || cur.IsArtificial || cur.SpecificationID == 0 {
				continue
			}
			switch decl := g.lookupPayload(cur.SpecificationID).(type) {
			case *Variable:
				if cur.Name == "" {
					cur.Name = decl.Name
				}
				if cur.MangledName == "" {
					cur.MangledName = decl.MangledName
				}
				if cur.TypeID == 0 {
					cur.TypeID = decl.TypeID
				}
			case *Member:
				if cur.Name == "" {
					cur.Name = decl.Name
				}
				if cur.TypeID == 0 {
					cur.TypeID = decl.TypeID
				}
			}
		}
	}
}

func (g *Graph) mergeAbstractOrigins() {
	for i := range g.entries {
		switch cur := g.entries[i].Payload.(type) {
		case *Function:
			if cur.AbstractOriginID == 0 {
				continue
			}
			origin, ok := g.lookupPayload(cur.AbstractOriginID).(*Function)
			if !ok {
				continue
			}
			// Only concrete instances carry code.
			if cur.LowPC == 0 || cur.HighPC == 0 {
				continue
			}
			fillFunction(cur, origin)

		case *FormalParameter:
			if cur.AbstractOriginID == 0 {
				continue
			}
			origin, ok := g.lookupPayload(cur.AbstractOriginID).(*FormalParameter)
			if !ok {
				continue
			}
			if origin.Location.Kind == LocationNone {
				origin.Location = cur.Location
			}
			if cur.Name == "" {
				cur.Name = origin.Name
			}
			if cur.TypeID == 0 {
				cur.TypeID = origin.TypeID
			}

		case *Variable:
			if cur.AbstractOriginID == 0 {
				continue
			}
			origin, ok := g.lookupPayload(cur.AbstractOriginID).(*Variable)
			if !ok {
				continue
			}
			if cur.Name == "" {
				cur.Name = origin.Name
			}
			if cur.TypeID == 0 {
				cur.TypeID = origin.TypeID
			}
		}
	}
}

func fillFunction(dst, src *Function) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.MangledName == "" {
		dst.MangledName = src.MangledName
	}
	if dst.ReturnTypeID == 0 {
		dst.ReturnTypeID = src.ReturnTypeID
	}
	if dst.Accessibility == AccessNone {
		dst.Accessibility = src.Accessibility
	}
}

func (g *Graph) lookupPayload(id uint64) Payload {
	e := g.Lookup(id)
	if e == nil {
		return nil
	}
	return e.Payload
}

// AssignCollectionNames names anonymous collections after the typedef that
// targets them, as in "typedef struct { ... } Point;". The typedef map is
// built in one pass.
func (g *Graph) AssignCollectionNames() {
	names := make(map[uint64]string)
	for i := range g.entries {
		if td, ok := g.entries[i].Payload.(*Typedef); ok && td.TargetID != 0 && td.Name != "" {
			names[td.TargetID] = td.Name
		}
	}
	if len(names) == 0 {
		return
	}
	for i := range g.entries {
		if c, ok := g.entries[i].Payload.(*Collection); ok && c.Name == "" {
			c.Name = names[g.entries[i].ID]
		}
	}
}
