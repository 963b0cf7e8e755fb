package disambig

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/symtab"
)

// Options are the global disambiguation flags.
type Options struct {
	// AllPointersSingle treats every pointer as one object.
	AllPointersSingle bool
	// FunctionPointersSingle treats pointers reached from parameters and
	// return values as one object.
	FunctionPointersSingle bool
}

// Policy decides how each variable is traversed.
type Policy struct {
	opts   Options
	obs    *Observations
	logger zerolog.Logger

	// Malformed counts policy file lines skipped on load.
	Malformed int
	// Applied and Unmatched count policy entries on the last Apply.
	Applied   int
	Unmatched int
}

// NewPolicy creates a policy. obs may be shared with a Generator.
func NewPolicy(opts Options, obs *Observations, logger zerolog.Logger) *Policy {
	if obs == nil {
		obs = NewObservations()
	}
	return &Policy{
		opts:   opts,
		obs:    obs,
		logger: logger.With().Str("component", "disambig").Logger(),
	}
}

// Observations returns the tracker the heuristic reads.
func (p *Policy) Observations() *Observations { return p.obs }

// Apply stores the overrides of f on the matching descriptors of prog. A
// usertype section applies to every type with that name. A coercion type
// is only set when a type by that name exists.
func (p *Policy) Apply(prog *symtab.Program, f *File) {
	p.Malformed = f.Malformed
	p.Applied = 0
	p.Unmatched = 0

	for _, sec := range f.Sections {
		for _, e := range sec.Entries {
			targets := lookup(prog, sec, e.Name)
			if len(targets) == 0 {
				p.Unmatched++
				p.logger.Debug().
					Str("section", sec.Header()).
					Str("variable", e.Name).
					Msg("Policy entry matches no variable")
				continue
			}
			for _, v := range targets {
				v.Override = byte(e.Letter)
				v.OverrideType = e.Type
				v.Coerce = symtab.NoType
				if e.Type != "" {
					if types := prog.TypesNamed(e.Type); len(types) > 0 {
						v.Coerce = types[0].ID
					}
				}
			}
			p.Applied++
		}
	}

	p.logger.Info().
		Int("applied", p.Applied).
		Int("unmatched", p.Unmatched).
		Int("malformed", p.Malformed).
		Msg("Applied disambiguation policy")
}

func lookup(prog *symtab.Program, sec Section, name string) []*symtab.Variable {
	var out []*symtab.Variable
	switch sec.Kind {
	case ScopeGlobals:
		for _, v := range prog.Globals() {
			if v.Name == name {
				out = append(out, v)
			}
		}
	case ScopeFunction:
		for _, f := range prog.Functions() {
			if f.Name != sec.Name {
				continue
			}
			for _, v := range f.Params {
				if v.Name == name {
					out = append(out, v)
				}
			}
			for _, v := range f.Locals {
				if v.Name == name {
					out = append(out, v)
				}
			}
			if f.Return != nil && f.Return.Name == name {
				out = append(out, f.Return)
			}
		}
	case ScopeUserType:
		for _, t := range prog.TypesNamed(sec.Name) {
			for _, v := range t.Members {
				if v.Name == name {
					out = append(out, v)
				}
				for _, e := range v.Flattened {
					if e.Name == name {
						out = append(out, e)
					}
				}
			}
			for _, v := range t.StaticMembers {
				if v.Name == name {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// Decide returns the decision for v reached from a root in rootScope. The
// rules apply in priority order: a policy override, the all-pointers flag,
// the function-boundary flag, the this/reference rule, then the heuristic.
func (p *Policy) Decide(v *symtab.Variable, rootScope symtab.Scope) Decision {
	d := Decision{Repr: ReprScalar}
	if v.IsString {
		d.Repr = ReprString
	}

	if letter := Letter(v.Override); letter != LetterNone {
		if od, ok := overrideDecision(v, letter, d); ok {
			return od
		}
	}

	switch {
	case p.opts.AllPointersSingle:
		d.Single = true
		d.Source = SourceAllPointers
	case p.opts.FunctionPointersSingle && rootScope.FunctionBoundary():
		d.Single = true
		d.Source = SourceFunctionPointers
	case v.IsThis || v.IsReferenceParam():
		d.Single = true
		d.Source = SourceThis
	default:
		d.Source = SourceHeuristic
		// Struct-member pointers stay sequences; there is no per-field
		// guessing.
		if v.Scope != symtab.ScopeMember {
			nonNull, multiple := p.obs.Observed(v)
			d.Single = nonNull && !multiple
		}
	}
	return d
}

// overrideDecision interprets a policy letter for v. It returns false when
// the letter has no meaning for this kind of variable.
func overrideDecision(v *symtab.Variable, letter Letter, d Decision) (Decision, bool) {
	d.Letter = letter
	d.Source = SourceOverride

	switch {
	case v.IsString && v.PtrLevels == 1:
		switch letter {
		case LetterChar:
			d.Repr = ReprOneCharString
		case LetterArray, LetterInt:
			d.Repr = ReprStringAsIntArray
		case LetterPointer:
			d.Repr = ReprStringAsOneInt
			d.Single = true
		case LetterString:
			d.Repr = ReprString
		default:
			return d, false
		}
		return d, true

	case v.PtrLevels == 0:
		if !v.CharBase {
			return d, false
		}
		switch letter {
		case LetterChar:
			d.Repr = ReprCharAsString
		case LetterInt:
			d.Repr = ReprScalar
		default:
			return d, false
		}
		return d, true
	}

	switch letter {
	case LetterPointer:
		d.Single = true
	case LetterArray:
		d.Single = false
	case LetterString:
		if !v.IsString {
			return d, false
		}
	default:
		return d, false
	}
	return d, true
}
