package symtab

import (
	"math"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/safe"
)

// Scope says where a variable was declared.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeLocal
	ScopeParameter
	ScopeReturn
	ScopeMember
	ScopeStaticMember
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeParameter:
		return "parameter"
	case ScopeReturn:
		return "return"
	case ScopeMember:
		return "member"
	case ScopeStaticMember:
		return "static_member"
	}
	return "unknown"
}

// FunctionBoundary reports whether values in this scope cross a call.
func (s Scope) FunctionBoundary() bool {
	return s == ScopeParameter || s == ScopeReturn
}

// Variable is a variable descriptor: everything the traversal needs to know
// about one declared variable, member or synthetic return value.
//
// Descriptors are created by Build. Afterwards only the disambiguation
// policy writes Override, OverrideType, Coerce and the observation flags, and
// the observation flags only under the disambig.Observations lock.
type Variable struct {
	Name string
	Type TypeID

	// PtrLevels counts pointer indirections, including one for a static
	// array at the top of the type chain. RefLevels counts C++ references.
	PtrLevels int
	RefLevels int

	// StaticArray is set for fixed arrays; Bounds holds the upper bound of
	// each dimension, 0 when unknown.
	StaticArray bool
	Bounds      []uint64

	// CharBase marks a char or unsigned char base type.
	CharBase bool
	// IsString marks a char or unsigned char reached through at least one
	// indirection. The final indirection denotes the string itself.
	IsString bool

	IsConst    bool
	HasConst   bool
	ConstValue int64

	IsDeclaration bool
	IsThis        bool

	Scope Scope
	// Owner is the enclosing function name for parameters, locals and
	// return values, or the enclosing type name for members.
	Owner string

	// Address is the link-time address of globals and static members.
	Address    uint64
	HasAddress bool
	// Location is the frame or register location of parameters and locals.
	Location dwarfgraph.Location
	// Offset is the byte offset of a member inside its container.
	Offset int64

	// Flattened holds one variable per element for small fixed arrays
	// inside collections.
	Flattened []*Variable

	// Policy-controlled fields.
	Override     byte
	OverrideType string
	Coerce       TypeID

	ObservedNonNull  bool
	ObservedMultiple bool
}

// ElementCount is the number of elements of a static array: the product of
// every dimension's upper bound plus one. Bounds whose product does not fit
// in a uint64 count as zero elements.
func (v *Variable) ElementCount() uint64 {
	if !v.StaticArray {
		return 1
	}
	n := uint64(1)
	for _, b := range v.Bounds {
		if b == math.MaxUint64 {
			return 0
		}
		var ok bool
		if n, ok = safe.MulLen(n, b+1); !ok {
			return 0
		}
	}
	return n
}

// IsPointer reports whether the variable has any indirection.
func (v *Variable) IsPointer() bool { return v.PtrLevels > 0 }

// IsReferenceParam reports a C++ reference parameter.
func (v *Variable) IsReferenceParam() bool {
	return v.Scope == ScopeParameter && v.RefLevels > 0
}

// EffectiveType is the coerced type when the policy set one.
func (v *Variable) EffectiveType() TypeID {
	if v.Coerce != NoType {
		return v.Coerce
	}
	return v.Type
}
