package symtab

import (
	"fmt"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
)

// TypeID addresses a Type in a Program's arena. NoType is the unresolved
// type and behaves as opaque.
type TypeID int

// NoType is the zero TypeID.
const NoType TypeID = 0

// Kind classifies a type descriptor.
type Kind int

const (
	KindOpaque Kind = iota
	KindVoid
	KindChar
	KindUnsignedChar
	KindBool
	KindShort
	KindUnsignedShort
	KindInt
	KindUnsignedInt
	KindLongLong
	KindUnsignedLongLong
	KindFloat
	KindDouble
	KindLongDouble
	KindEnum
	KindStruct
	KindClass
	KindUnion
	KindFunction
)

var kindNames = [...]string{
	KindOpaque:           "opaque",
	KindVoid:             "void",
	KindChar:             "char",
	KindUnsignedChar:     "unsigned char",
	KindBool:             "bool",
	KindShort:            "short",
	KindUnsignedShort:    "unsigned short",
	KindInt:              "int",
	KindUnsignedInt:      "unsigned int",
	KindLongLong:         "long long",
	KindUnsignedLongLong: "unsigned long long",
	KindFloat:            "float",
	KindDouble:           "double",
	KindLongDouble:       "long double",
	KindEnum:             "enum",
	KindStruct:           "struct",
	KindClass:            "class",
	KindUnion:            "union",
	KindFunction:         "function",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsChar reports whether the kind is a plain or unsigned character.
func (k Kind) IsChar() bool { return k == KindChar || k == KindUnsignedChar }

// Superclass is one base of a class together with its offset inside the
// derived object.
type Superclass struct {
	Type   TypeID
	Offset int64
}

// Type is a type descriptor with modifiers and typedefs stripped.
type Type struct {
	ID       TypeID
	Kind     Kind
	Name     string
	ByteSize int64

	// Members, static members and superclasses are set for struct, class
	// and union kinds.
	Members       []*Variable
	StaticMembers []*Variable
	Superclasses  []Superclass

	// Enumerators is set for enum kinds.
	Enumerators []Enumerator

	// Incomplete marks a forward declaration with no definition found.
	Incomplete bool

	ref dwarfgraph.Ref
}

// Enumerator is a named value of an enum type.
type Enumerator struct {
	Name  string
	Value int64
}

// IsCollection reports whether members are visited under this type.
func (t *Type) IsCollection() bool {
	switch t.Kind {
	case KindStruct, KindClass, KindUnion:
		return true
	}
	return false
}

// DisplayName is the type's name, or its kind when it has none.
func (t *Type) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

func (t *Type) String() string { return t.DisplayName() }

// Ref is the graph entry the type was derived from, NoRef for synthesized
// types.
func (t *Type) Ref() dwarfgraph.Ref { return t.ref }

// baseKind maps a DWARF base type to a Kind from its encoding and width.
func baseKind(b *dwarfgraph.BaseType) Kind {
	switch b.Encoding {
	case dwarfgraph.EncodingBoolean:
		return KindBool
	case dwarfgraph.EncodingFloat:
		switch {
		case b.ByteSize <= 4:
			return KindFloat
		case b.ByteSize <= 8:
			return KindDouble
		}
		return KindLongDouble
	case dwarfgraph.EncodingSignedChar:
		return KindChar
	case dwarfgraph.EncodingUnsignedChar:
		return KindUnsignedChar
	case dwarfgraph.EncodingSigned:
		return intKind(b.ByteSize, true)
	case dwarfgraph.EncodingUnsigned, dwarfgraph.EncodingAddress, dwarfgraph.EncodingUTF:
		return intKind(b.ByteSize, false)
	}
	return KindOpaque
}

func intKind(size int64, signed bool) Kind {
	switch {
	case size <= 1:
		if signed {
			return KindChar
		}
		return KindUnsignedChar
	case size == 2:
		if signed {
			return KindShort
		}
		return KindUnsignedShort
	case size <= 4:
		if signed {
			return KindInt
		}
		return KindUnsignedInt
	}
	if signed {
		return KindLongLong
	}
	return KindUnsignedLongLong
}
