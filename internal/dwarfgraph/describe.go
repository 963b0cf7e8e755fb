package dwarfgraph

import (
	"fmt"
	"strings"
)

// Describe renders one entry on a single line for graph dumps.
func (g *Graph) Describe(r Ref) string {
	e := g.Entry(r)
	if e == nil {
		return "<unresolved>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<%d><%#x> %s", e.Level, e.ID, e.Tag())

	switch p := e.Payload.(type) {
	case *BaseType:
		fmt.Fprintf(&b, " name=%q size=%d encoding=%#x", p.Name, p.ByteSize, p.Encoding)
	case *Modifier:
		fmt.Fprintf(&b, " kind=%s target=%s", p.Kind, g.refName(p.Target, p.TargetID))
	case *Collection:
		fmt.Fprintf(&b, " kind=%s name=%q size=%d members=%d static=%d methods=%d supers=%d",
			p.Kind, p.Name, p.ByteSize, len(p.Members), len(p.StaticMembers), len(p.Methods), len(p.Superclasses))
		if p.IsDeclaration {
			b.WriteString(" declaration")
		}
	case *Member:
		fmt.Fprintf(&b, " name=%q type=%s offset=%d", p.Name, g.refName(p.Type, p.TypeID), p.Offset)
		if p.IsExternal {
			b.WriteString(" external")
		}
	case *Enumerator:
		fmt.Fprintf(&b, " name=%q value=%d", p.Name, p.Value)
	case *Function:
		fmt.Fprintf(&b, " name=%q file=%q return=%s low_pc=%#x params=%d locals=%d",
			p.Name, p.Filename, g.refName(p.ReturnType, p.ReturnTypeID), p.LowPC, len(p.Params), len(p.Locals))
	case *FormalParameter:
		fmt.Fprintf(&b, " name=%q type=%s location=%s", p.Name, g.refName(p.Type, p.TypeID), p.Location)
	case *CompileUnit:
		fmt.Fprintf(&b, " file=%q", p.Filename)
	case *FunctionType:
		fmt.Fprintf(&b, " return=%s", g.refName(p.ReturnType, p.ReturnTypeID))
	case *ArrayType:
		fmt.Fprintf(&b, " element=%s dims=%d", g.refName(p.ElementType, p.ElementTypeID), len(p.Subranges))
	case *ArraySubrange:
		if p.HasUpperBound {
			fmt.Fprintf(&b, " upper=%d", p.UpperBound)
		} else {
			b.WriteString(" upper=?")
		}
	case *Typedef:
		fmt.Fprintf(&b, " name=%q target=%s", p.Name, g.refName(p.Target, p.TargetID))
	case *Variable:
		fmt.Fprintf(&b, " name=%q type=%s location=%s", p.Name, g.refName(p.Type, p.TypeID), p.Location)
		if p.IsStaticMember {
			b.WriteString(" static_member")
		}
		if p.IsDeclaration {
			b.WriteString(" declaration")
		}
	case *Inheritance:
		fmt.Fprintf(&b, " type=%s offset=%d", g.refName(p.Type, p.TypeID), p.Offset)
	case *Namespace:
		fmt.Fprintf(&b, " name=%q", p.Name)
	default:
		panicUnhandled(e)
	}
	return b.String()
}

func (g *Graph) refName(r Ref, id uint64) string {
	if r == NoRef {
		if id == 0 {
			return "void"
		}
		return fmt.Sprintf("<%#x?>", id)
	}
	return fmt.Sprintf("<%#x>", g.Entry(r).ID)
}
