package disambig

import (
	"slices"

	"github.com/coral-mesh/varscope/internal/symtab"
)

// Generator turns what was observed during a run into a policy file.
type Generator struct {
	prog *symtab.Program
	obs  *Observations
}

// NewGenerator creates a generator reading the flags tracked by obs.
func NewGenerator(prog *symtab.Program, obs *Observations) *Generator {
	return &Generator{prog: prog, obs: obs}
}

// Letter returns the letter to persist for v. Only pointers and plain
// characters are emitted.
func (g *Generator) Letter(v *symtab.Variable) (Letter, bool) {
	if v.PtrLevels == 0 {
		if v.CharBase {
			return LetterInt, true
		}
		return LetterNone, false
	}
	if v.IsString {
		return LetterString, true
	}
	if v.Scope == symtab.ScopeMember {
		return LetterArray, true
	}
	nonNull, multiple := g.obs.Observed(v)
	if nonNull && !multiple {
		return LetterPointer, true
	}
	return LetterArray, true
}

// File builds the policy: one section per function with its parameters and
// return value, then the globals, then one section per user type name in
// sorted order.
func (g *Generator) File() *File {
	f := &File{}

	seenFunctions := make(map[string]struct{})
	for _, fn := range g.prog.Functions() {
		if _, dup := seenFunctions[fn.Name]; dup {
			continue
		}
		seenFunctions[fn.Name] = struct{}{}

		vars := append([]*symtab.Variable(nil), fn.Params...)
		if fn.Return != nil {
			vars = append(vars, fn.Return)
		}
		g.addSection(f, Section{Kind: ScopeFunction, Name: fn.Name}, vars)
	}

	g.addSection(f, Section{Kind: ScopeGlobals}, g.prog.Globals())

	// Same-named collections share one section; the first definition wins.
	// A typedef or scalar of the same name never takes the section.
	collections := make(map[string]*symtab.Type)
	var typeNames []string
	for _, t := range g.prog.Types() {
		if !t.IsCollection() || t.Name == "" {
			continue
		}
		if _, dup := collections[t.Name]; dup {
			continue
		}
		collections[t.Name] = t
		typeNames = append(typeNames, t.Name)
	}
	slices.Sort(typeNames)

	for _, name := range typeNames {
		g.addSection(f, Section{Kind: ScopeUserType, Name: name}, collections[name].Members)
	}

	return f
}

func (g *Generator) addSection(f *File, sec Section, vars []*symtab.Variable) {
	for _, v := range vars {
		letter, ok := g.Letter(v)
		if !ok {
			continue
		}
		sec.Entries = append(sec.Entries, Entry{Name: v.Name, Letter: letter})
	}
	if len(sec.Entries) > 0 {
		f.Sections = append(f.Sections, sec)
	}
}

// Write writes the generated policy to path.
func (g *Generator) Write(path string) error {
	return WritePolicy(path, g.File())
}
