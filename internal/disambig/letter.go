// Package disambig decides whether a pointer refers to one object or to a
// sequence, and how character data is presented. Decisions come from a
// persisted policy file, global flags, and a heuristic that learns from
// observed target memory. In generation mode it writes the learned decisions
// back out as a policy file.
package disambig

import "fmt"

// Letter is a one-character disambiguation code from a policy file.
type Letter byte

const (
	LetterNone Letter = 0
	// LetterArray treats a pointer as a sequence; on strings it reads the
	// characters as integers.
	LetterArray Letter = 'A'
	// LetterPointer treats a pointer as one object; on strings it reads the
	// first character as one integer.
	LetterPointer Letter = 'P'
	// LetterChar reads a string as one character, or a plain char as a
	// one-character string.
	LetterChar Letter = 'C'
	// LetterString is the default for strings.
	LetterString Letter = 'S'
	// LetterInt reads characters as integers.
	LetterInt Letter = 'I'
)

// ParseLetter parses a policy letter.
func ParseLetter(s string) (Letter, error) {
	if len(s) != 1 {
		return LetterNone, fmt.Errorf("invalid disambiguation letter %q", s)
	}
	switch l := Letter(s[0]); l {
	case LetterArray, LetterPointer, LetterChar, LetterString, LetterInt:
		return l, nil
	}
	return LetterNone, fmt.Errorf("unknown disambiguation letter %q", s)
}

func (l Letter) String() string {
	if l == LetterNone {
		return "-"
	}
	return string(rune(l))
}

// Representation is how the value at the end of a variable's indirections
// is presented.
type Representation int

const (
	ReprScalar Representation = iota
	ReprString
	ReprOneCharString
	ReprCharAsString
	ReprStringAsIntArray
	ReprStringAsOneInt
)

func (r Representation) String() string {
	switch r {
	case ReprScalar:
		return "scalar"
	case ReprString:
		return "string"
	case ReprOneCharString:
		return "one-char-string"
	case ReprCharAsString:
		return "char-as-string"
	case ReprStringAsIntArray:
		return "string-as-int-array"
	case ReprStringAsOneInt:
		return "string-as-one-int"
	}
	return fmt.Sprintf("repr(%d)", int(r))
}

// Source names the rule that produced a decision.
type Source int

const (
	SourceHeuristic Source = iota
	SourceOverride
	SourceAllPointers
	SourceFunctionPointers
	SourceThis
)

func (s Source) String() string {
	switch s {
	case SourceHeuristic:
		return "heuristic"
	case SourceOverride:
		return "override"
	case SourceAllPointers:
		return "all-pointers"
	case SourceFunctionPointers:
		return "function-pointers"
	case SourceThis:
		return "this"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// Decision is the disambiguation in force for one variable's traversal.
type Decision struct {
	Letter Letter
	// Single means pointers dereference to exactly one object.
	Single bool
	Repr   Representation
	Source Source
}

// StringLike reports whether the variable's final indirection still
// denotes a string.
func (d Decision) StringLike() bool {
	return d.Repr == ReprString || d.Repr == ReprOneCharString
}
