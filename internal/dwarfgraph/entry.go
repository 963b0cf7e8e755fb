// Package dwarfgraph decodes DWARF debug entries into a flat, ID-sorted arena
// and links it into a navigable type and symbol graph.
//
// Entries are addressed by Ref, a 1-based index into the arena. The zero Ref
// means "unresolved" and must be treated as an opaque type by consumers.
package dwarfgraph

import "fmt"

// Tag identifies the kind of a debug entry.
type Tag int

const (
	TagInvalid Tag = iota
	TagBaseType
	TagModifier
	TagCollection
	TagMember
	TagEnumerator
	TagFunction
	TagFormalParameter
	TagCompileUnit
	TagFunctionType
	TagArrayType
	TagArraySubrange
	TagTypedef
	TagVariable
	TagInheritance
	TagNamespace
)

var tagNames = [...]string{
	TagInvalid:         "invalid",
	TagBaseType:        "base_type",
	TagModifier:        "modifier",
	TagCollection:      "collection",
	TagMember:          "member",
	TagEnumerator:      "enumerator",
	TagFunction:        "function",
	TagFormalParameter: "formal_parameter",
	TagCompileUnit:     "compile_unit",
	TagFunctionType:    "function_type",
	TagArrayType:       "array_type",
	TagArraySubrange:   "subrange",
	TagTypedef:         "typedef",
	TagVariable:        "variable",
	TagInheritance:     "inheritance",
	TagNamespace:       "namespace",
}

func (t Tag) String() string {
	if t < 0 || int(t) >= len(tagNames) {
		return fmt.Sprintf("tag(%d)", int(t))
	}
	return tagNames[t]
}

// Ref is a stable 1-based index into a Graph's entry arena.
type Ref uint32

// NoRef is the unresolved reference.
const NoRef Ref = 0

// Valid reports whether r points at an entry.
func (r Ref) Valid() bool { return r != NoRef }

// Entry is one decoded debug unit.
type Entry struct {
	// ID is the unit's offset in .debug_info. Unique and ascending.
	ID        uint64
	Level     int
	SiblingID uint64
	Payload   Payload
}

// Tag returns the entry's tag, or TagInvalid for an empty payload.
func (e *Entry) Tag() Tag {
	if e.Payload == nil {
		return TagInvalid
	}
	return e.Payload.Tag()
}

// Payload is the closed set of tag-specific entry contents. Every variant is
// declared in this package.
type Payload interface {
	Tag() Tag
	sealed()
}

// ModifierKind distinguishes the modifier variants.
type ModifierKind int

const (
	ModifierConst ModifierKind = iota
	ModifierPointer
	ModifierReference
	ModifierRvalueReference
	ModifierVolatile
)

func (k ModifierKind) String() string {
	switch k {
	case ModifierConst:
		return "const"
	case ModifierPointer:
		return "pointer"
	case ModifierReference:
		return "reference"
	case ModifierRvalueReference:
		return "rvalue_reference"
	case ModifierVolatile:
		return "volatile"
	}
	return fmt.Sprintf("modifier(%d)", int(k))
}

// Indirects reports whether the modifier adds a level of indirection.
func (k ModifierKind) Indirects() bool {
	return k == ModifierPointer || k == ModifierReference || k == ModifierRvalueReference
}

// CollectionKind distinguishes aggregate types.
type CollectionKind int

const (
	CollectionStruct CollectionKind = iota
	CollectionClass
	CollectionUnion
	CollectionEnum
)

func (k CollectionKind) String() string {
	switch k {
	case CollectionStruct:
		return "struct"
	case CollectionClass:
		return "class"
	case CollectionUnion:
		return "union"
	case CollectionEnum:
		return "enum"
	}
	return fmt.Sprintf("collection(%d)", int(k))
}

// Base type encodings (DW_ATE_*).
const (
	EncodingAddress      = 0x01
	EncodingBoolean      = 0x02
	EncodingComplexFloat = 0x03
	EncodingFloat        = 0x04
	EncodingSigned       = 0x05
	EncodingSignedChar   = 0x06
	EncodingUnsigned     = 0x07
	EncodingUnsignedChar = 0x08
	EncodingUTF          = 0x10
)

// Accessibility values (DW_ACCESS_*).
const (
	AccessNone      = 0
	AccessPublic    = 1
	AccessProtected = 2
	AccessPrivate   = 3
)

// BaseType is a scalar type such as int or double.
type BaseType struct {
	Name      string
	ByteSize  int64
	Encoding  int
	BitSize   int64
	BitOffset int64
}

// Modifier wraps another type: const, volatile, pointer or reference.
type Modifier struct {
	Kind     ModifierKind
	TargetID uint64
	Target   Ref
}

// Collection is a struct, class, union or enumeration.
type Collection struct {
	Kind            CollectionKind
	Name            string
	ByteSize        int64
	IsDeclaration   bool
	SpecificationID uint64

	// Filled by LinkContainment.
	Members       []Ref
	StaticMembers []Ref
	Methods       []Ref
	Superclasses  []Ref
}

// Member is a data member of a collection.
type Member struct {
	Name          string
	TypeID        uint64
	Type          Ref
	Offset        int64
	HasOffset     bool
	IsExternal    bool
	IsDeclaration bool
	BitSize       int64
	BitOffset     int64
	Accessibility int
	HasConst      bool
	ConstValue    int64
}

// Enumerator is one named value of an enumeration.
type Enumerator struct {
	Name  string
	Value int64
}

// Function is a subprogram.
type Function struct {
	Name             string
	MangledName      string
	ReturnTypeID     uint64
	ReturnType       Ref
	IsExternal       bool
	IsDeclaration    bool
	IsMember         bool
	IsArtificial     bool
	Accessibility    int
	SpecificationID  uint64
	AbstractOriginID uint64
	LowPC            uint64
	HighPC           uint64
	FrameBase        Location
	Filename         string

	// Filled by LinkContainment.
	Params []Ref
	Locals []Ref
}

// FormalParameter is a function parameter.
type FormalParameter struct {
	Name             string
	TypeID           uint64
	Type             Ref
	Location         Location
	IsArtificial     bool
	AbstractOriginID uint64
}

// CompileUnit is the root of one translation unit.
type CompileUnit struct {
	Filename string
	CompDir  string
	Language int
	Producer string
}

// FunctionType is a subroutine type, the target of function pointers.
type FunctionType struct {
	ReturnTypeID uint64
	ReturnType   Ref
}

// ArrayType is a fixed array; its dimensions are ArraySubrange children.
type ArrayType struct {
	ElementTypeID uint64
	ElementType   Ref

	// Filled by LinkContainment.
	Subranges []Ref
}

// ArraySubrange is one dimension of an array.
type ArraySubrange struct {
	UpperBound    uint64
	HasUpperBound bool
}

// Typedef names another type.
type Typedef struct {
	Name     string
	TargetID uint64
	Target   Ref
}

// Variable is a global, local or static member variable.
type Variable struct {
	Name             string
	MangledName      string
	TypeID           uint64
	Type             Ref
	IsExternal       bool
	IsDeclaration    bool
	IsArtificial     bool
	SpecificationID  uint64
	AbstractOriginID uint64
	Location         Location
	HasConst         bool
	ConstValue       int64

	// Set by LinkContainment when the variable holds a global address.
	CouldBeGlobal  bool
	IsStaticMember bool
}

// GlobalAddr returns the variable's static address if its location is one.
func (v *Variable) GlobalAddr() (uint64, bool) {
	if v.Location.Kind == LocationAddress {
		return v.Location.Address, true
	}
	return 0, false
}

// Inheritance names a superclass of the enclosing collection.
type Inheritance struct {
	TypeID        uint64
	Type          Ref
	Offset        int64
	Accessibility int
	IsVirtual     bool
}

// Namespace is a C++ namespace.
type Namespace struct {
	Name string
}

func (*BaseType) Tag() Tag        { return TagBaseType }
func (*Modifier) Tag() Tag        { return TagModifier }
func (*Collection) Tag() Tag      { return TagCollection }
func (*Member) Tag() Tag          { return TagMember }
func (*Enumerator) Tag() Tag      { return TagEnumerator }
func (*Function) Tag() Tag        { return TagFunction }
func (*FormalParameter) Tag() Tag { return TagFormalParameter }
func (*CompileUnit) Tag() Tag     { return TagCompileUnit }
func (*FunctionType) Tag() Tag    { return TagFunctionType }
func (*ArrayType) Tag() Tag       { return TagArrayType }
func (*ArraySubrange) Tag() Tag   { return TagArraySubrange }
func (*Typedef) Tag() Tag         { return TagTypedef }
func (*Variable) Tag() Tag        { return TagVariable }
func (*Inheritance) Tag() Tag     { return TagInheritance }
func (*Namespace) Tag() Tag       { return TagNamespace }

func (*BaseType) sealed()        {}
func (*Modifier) sealed()        {}
func (*Collection) sealed()      {}
func (*Member) sealed()          {}
func (*Enumerator) sealed()      {}
func (*Function) sealed()        {}
func (*FormalParameter) sealed() {}
func (*CompileUnit) sealed()     {}
func (*FunctionType) sealed()    {}
func (*ArrayType) sealed()       {}
func (*ArraySubrange) sealed()   {}
func (*Typedef) sealed()         {}
func (*Variable) sealed()        {}
func (*Inheritance) sealed()     {}
func (*Namespace) sealed()       {}
