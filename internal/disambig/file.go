package disambig

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/constants"
	"github.com/coral-mesh/varscope/internal/safe"
)

const maxPolicySize = 16 << 20

// ScopeKind is the kind of a policy file section.
type ScopeKind int

const (
	ScopeGlobals ScopeKind = iota
	ScopeFunction
	ScopeUserType
)

const (
	headerGlobals  = "globals"
	prefixFunction = "function: "
	prefixUserType = "usertype."
)

// Entry is one variable's override.
type Entry struct {
	Name   string
	Letter Letter
	// Type is an optional type name the variable is coerced to.
	Type string
}

// Section is a run of entries under one scope header.
type Section struct {
	Kind ScopeKind
	// Name is the function or type name; empty for globals.
	Name    string
	Entries []Entry
}

// Header renders the section's header line.
func (s Section) Header() string {
	switch s.Kind {
	case ScopeFunction:
		return prefixFunction + s.Name
	case ScopeUserType:
		return prefixUserType + s.Name
	}
	return headerGlobals
}

// File is a parsed policy file.
type File struct {
	Sections []Section
	// Malformed counts lines skipped while parsing.
	Malformed int
}

// Len returns the number of entries across all sections.
func (f *File) Len() int {
	n := 0
	for _, s := range f.Sections {
		n += len(s.Entries)
	}
	return n
}

// ReadPolicy reads and parses a policy file.
func ReadPolicy(path string, logger zerolog.Logger) (*File, error) {
	data, err := safe.ReadFile(path, &safe.ReadOptions{MaxSize: maxPolicySize})
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(bytes.NewReader(data), logger)
}

// ParsePolicy parses the line-oriented policy format:
//
//	----SECTION----
//	globals
//	head
//	P
//	----SECTION----
//	usertype.Node
//	next
//	A Node
//
// Blank lines are ignored. A malformed line is skipped with a warning and
// counted; parsing carries on.
func ParsePolicy(r io.Reader, logger zerolog.Logger) (*File, error) {
	f := &File{}
	var (
		cur        *Section
		wantHeader bool
		pending    string
		lineNo     int
	)

	malformed := func(line, reason string) {
		f.Malformed++
		logger.Warn().Int("line", lineNo).Str("text", line).Msgf("Skipping malformed policy line: %s", reason)
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == constants.PolicySectionDelimiter {
			if pending != "" {
				malformed(pending, "variable without a letter")
				pending = ""
			}
			wantHeader = true
			cur = nil
			continue
		}

		if wantHeader {
			wantHeader = false
			sec, ok := parseHeader(line)
			if !ok {
				malformed(line, "unknown section header")
				continue
			}
			f.Sections = append(f.Sections, sec)
			cur = &f.Sections[len(f.Sections)-1]
			continue
		}

		if cur == nil {
			malformed(line, "line outside a section")
			continue
		}

		if pending == "" {
			pending = line
			continue
		}

		entry, err := parseEntry(pending, line)
		pending = ""
		if err != nil {
			malformed(line, err.Error())
			continue
		}
		cur.Entries = append(cur.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	if pending != "" {
		malformed(pending, "variable without a letter")
	}
	return f, nil
}

func parseHeader(line string) (Section, bool) {
	switch {
	case line == headerGlobals:
		return Section{Kind: ScopeGlobals}, true
	case strings.HasPrefix(line, prefixFunction):
		name := strings.TrimSpace(strings.TrimPrefix(line, prefixFunction))
		return Section{Kind: ScopeFunction, Name: name}, name != ""
	case strings.HasPrefix(line, prefixUserType):
		name := strings.TrimPrefix(line, prefixUserType)
		return Section{Kind: ScopeUserType, Name: name}, name != ""
	}
	return Section{}, false
}

func parseEntry(name, line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) > 2 {
		return Entry{}, fmt.Errorf("expected a letter and an optional type, got %d fields", len(fields))
	}
	letter, err := ParseLetter(fields[0])
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Name: name, Letter: letter}
	if len(fields) == 2 {
		e.Type = fields[1]
	}
	return e, nil
}

// WriteTo writes the file in policy format.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for _, s := range f.Sections {
		b.WriteString(constants.PolicySectionDelimiter)
		b.WriteByte('\n')
		b.WriteString(s.Header())
		b.WriteByte('\n')
		for _, e := range s.Entries {
			b.WriteString(e.Name)
			b.WriteByte('\n')
			b.WriteString(e.Letter.String())
			if e.Type != "" {
				b.WriteByte(' ')
				b.WriteString(e.Type)
			}
			b.WriteByte('\n')
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// WritePolicy writes f to path atomically.
func WritePolicy(path string, f *File) error {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return err
	}
	if err := safe.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	return nil
}
