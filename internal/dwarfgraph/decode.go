package dwarfgraph

import (
	"context"
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/errors"
	"github.com/coral-mesh/varscope/internal/safe"
)

// attrMIPSLinkageName is the pre-DWARF 4 GNU spelling of DW_AT_linkage_name.
const attrMIPSLinkageName dwarf.Attr = 0x2007

// DecodeStats summarizes one decode run.
type DecodeStats struct {
	Entries      int
	Skipped      int
	CompileUnits int
}

// Decode opens an ELF binary and decodes its DWARF into an ID-sorted entry
// list with cross references left as raw IDs.
func Decode(ctx context.Context, path string, logger zerolog.Logger) ([]Entry, error) {
	logger = logger.With().Str("component", "dwarf-decoder").Logger()

	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file %s: %w", path, err)
	}
	defer errors.DeferClose(logger, f, "failed to close ELF file")

	data, err := f.DWARF()
	if err != nil {
		return nil, fmt.Errorf("no DWARF debug info in %s: %w", path, err)
	}

	addrSize := 8
	if f.Class == elf.ELFCLASS32 {
		addrSize = 4
	}

	entries, stats, err := DecodeData(ctx, data, addrSize, logger)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("binary", path).
		Int("entries", stats.Entries).
		Int("skipped", stats.Skipped).
		Int("compile_units", stats.CompileUnits).
		Msg("Decoded DWARF entries")

	return entries, nil
}

// DecodeData decodes already opened DWARF data. Entries whose attributes use
// an encoding this decoder does not understand are skipped together with
// their children, with a warning.
func DecodeData(ctx context.Context, data *dwarf.Data, addrSize int, logger zerolog.Logger) ([]Entry, DecodeStats, error) {
	var (
		stats   DecodeStats
		entries []Entry
		level   int
	)

	r := data.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read DWARF entry: %w", err)
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			level--
			continue
		}
		if e.Tag == dwarf.TagCompileUnit {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			stats.CompileUnits++
		}

		payload, err := decodePayload(e, addrSize)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("tag", e.Tag.String()).
				Uint64("offset", uint64(e.Offset)).
				Msg("Skipping debug entry with unsupported encoding")
			stats.Skipped++
			if e.Children {
				r.SkipChildren()
			}
			continue
		}

		entryLevel := level
		if e.Children {
			level++
		}
		if payload == nil {
			continue
		}

		var sibling uint64
		if off, ok := e.Val(dwarf.AttrSibling).(dwarf.Offset); ok {
			sibling = uint64(off)
		}
		entries = append(entries, Entry{
			ID:        uint64(e.Offset),
			Level:     entryLevel,
			SiblingID: sibling,
			Payload:   payload,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	stats.Entries = len(entries)
	return entries, stats, nil
}

// decodePayload maps one DWARF entry to a payload. It returns nil, nil for
// tags the graph does not model.
func decodePayload(e *dwarf.Entry, addrSize int) (Payload, error) {
	switch e.Tag {
	case dwarf.TagBaseType:
		size, _ := intAttr(e, dwarf.AttrByteSize)
		enc, _ := intAttr(e, dwarf.AttrEncoding)
		bitSize, _ := intAttr(e, dwarf.AttrBitSize)
		bitOff, _ := intAttr(e, dwarf.AttrBitOffset)
		return &BaseType{
			Name:      strAttr(e, dwarf.AttrName),
			ByteSize:  size,
			Encoding:  int(enc),
			BitSize:   bitSize,
			BitOffset: bitOff,
		}, nil

	case dwarf.TagConstType, dwarf.TagPointerType, dwarf.TagReferenceType,
		dwarf.TagRvalueReferenceType, dwarf.TagVolatileType:
		return &Modifier{
			Kind:     modifierKind(e.Tag),
			TargetID: offsetAttr(e, dwarf.AttrType),
		}, nil

	case dwarf.TagStructType, dwarf.TagClassType, dwarf.TagUnionType, dwarf.TagEnumerationType:
		size, _ := intAttr(e, dwarf.AttrByteSize)
		return &Collection{
			Kind:            collectionKind(e.Tag),
			Name:            strAttr(e, dwarf.AttrName),
			ByteSize:        size,
			IsDeclaration:   boolAttr(e, dwarf.AttrDeclaration),
			SpecificationID: offsetAttr(e, dwarf.AttrSpecification),
		}, nil

	case dwarf.TagMember:
		m := &Member{
			Name:          strAttr(e, dwarf.AttrName),
			TypeID:        offsetAttr(e, dwarf.AttrType),
			IsExternal:    boolAttr(e, dwarf.AttrExternal),
			IsDeclaration: boolAttr(e, dwarf.AttrDeclaration),
		}
		m.BitSize, _ = intAttr(e, dwarf.AttrBitSize)
		m.BitOffset, _ = intAttr(e, dwarf.AttrBitOffset)
		acc, _ := intAttr(e, dwarf.AttrAccessibility)
		m.Accessibility = int(acc)
		m.ConstValue, m.HasConst = intAttr(e, dwarf.AttrConstValue)

		switch v := e.Val(dwarf.AttrDataMemberLoc).(type) {
		case nil:
		case int64:
			m.Offset, m.HasOffset = v, true
		case []byte:
			off, err := ParseMemberOffset(v)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			m.Offset, m.HasOffset = off, true
		default:
			return nil, fmt.Errorf("member %q: unsupported data member location %T", m.Name, v)
		}
		return m, nil

	case dwarf.TagEnumerator:
		val, _ := intAttr(e, dwarf.AttrConstValue)
		return &Enumerator{Name: strAttr(e, dwarf.AttrName), Value: val}, nil

	case dwarf.TagSubprogram:
		f := &Function{
			Name:             strAttr(e, dwarf.AttrName),
			MangledName:      linkageName(e),
			ReturnTypeID:     offsetAttr(e, dwarf.AttrType),
			IsExternal:       boolAttr(e, dwarf.AttrExternal),
			IsDeclaration:    boolAttr(e, dwarf.AttrDeclaration),
			IsArtificial:     boolAttr(e, dwarf.AttrArtificial),
			SpecificationID:  offsetAttr(e, dwarf.AttrSpecification),
			AbstractOriginID: offsetAttr(e, dwarf.AttrAbstractOrigin),
		}
		acc, _ := intAttr(e, dwarf.AttrAccessibility)
		f.Accessibility = int(acc)
		f.LowPC, f.HighPC = pcRange(e)
		if expr, ok := e.Val(dwarf.AttrFrameBase).([]byte); ok {
			loc, err := ParseLocation(expr, addrSize)
			if err != nil {
				return nil, fmt.Errorf("function %q frame base: %w", f.Name, err)
			}
			f.FrameBase = loc
		}
		return f, nil

	case dwarf.TagFormalParameter:
		p := &FormalParameter{
			Name:             strAttr(e, dwarf.AttrName),
			TypeID:           offsetAttr(e, dwarf.AttrType),
			IsArtificial:     boolAttr(e, dwarf.AttrArtificial),
			AbstractOriginID: offsetAttr(e, dwarf.AttrAbstractOrigin),
		}
		loc, err := locationAttr(e, addrSize)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		p.Location = loc
		return p, nil

	case dwarf.TagCompileUnit:
		lang, _ := intAttr(e, dwarf.AttrLanguage)
		return &CompileUnit{
			Filename: strAttr(e, dwarf.AttrName),
			CompDir:  strAttr(e, dwarf.AttrCompDir),
			Language: int(lang),
			Producer: strAttr(e, dwarf.AttrProducer),
		}, nil

	case dwarf.TagSubroutineType:
		return &FunctionType{ReturnTypeID: offsetAttr(e, dwarf.AttrType)}, nil

	case dwarf.TagArrayType:
		return &ArrayType{ElementTypeID: offsetAttr(e, dwarf.AttrType)}, nil

	case dwarf.TagSubrangeType:
		s := &ArraySubrange{}
		if ub, ok := intAttr(e, dwarf.AttrUpperBound); ok && ub >= 0 {
			s.UpperBound, s.HasUpperBound = uint64(ub), true
		} else if count, ok := intAttr(e, dwarf.AttrCount); ok && count > 0 {
			s.UpperBound, s.HasUpperBound = uint64(count-1), true
		}
		return s, nil

	case dwarf.TagTypedef:
		return &Typedef{
			Name:     strAttr(e, dwarf.AttrName),
			TargetID: offsetAttr(e, dwarf.AttrType),
		}, nil

	case dwarf.TagVariable:
		v := &Variable{
			Name:             strAttr(e, dwarf.AttrName),
			MangledName:      linkageName(e),
			TypeID:           offsetAttr(e, dwarf.AttrType),
			IsExternal:       boolAttr(e, dwarf.AttrExternal),
			IsDeclaration:    boolAttr(e, dwarf.AttrDeclaration),
			IsArtificial:     boolAttr(e, dwarf.AttrArtificial),
			SpecificationID:  offsetAttr(e, dwarf.AttrSpecification),
			AbstractOriginID: offsetAttr(e, dwarf.AttrAbstractOrigin),
		}
		v.ConstValue, v.HasConst = intAttr(e, dwarf.AttrConstValue)
		loc, err := locationAttr(e, addrSize)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Name, err)
		}
		v.Location = loc
		return v, nil

	case dwarf.TagInheritance:
		inh := &Inheritance{
			TypeID:    offsetAttr(e, dwarf.AttrType),
			IsVirtual: e.Val(dwarf.AttrVirtuality) != nil,
		}
		acc, _ := intAttr(e, dwarf.AttrAccessibility)
		inh.Accessibility = int(acc)
		switch v := e.Val(dwarf.AttrDataMemberLoc).(type) {
		case nil:
		case int64:
			inh.Offset = v
		case []byte:
			off, err := ParseMemberOffset(v)
			if err != nil {
				return nil, fmt.Errorf("inheritance: %w", err)
			}
			inh.Offset = off
		}
		return inh, nil

	case dwarf.TagNamespace:
		return &Namespace{Name: strAttr(e, dwarf.AttrName)}, nil
	}

	return nil, nil
}

func modifierKind(tag dwarf.Tag) ModifierKind {
	switch tag {
	case dwarf.TagPointerType:
		return ModifierPointer
	case dwarf.TagReferenceType:
		return ModifierReference
	case dwarf.TagRvalueReferenceType:
		return ModifierRvalueReference
	case dwarf.TagVolatileType:
		return ModifierVolatile
	}
	return ModifierConst
}

func collectionKind(tag dwarf.Tag) CollectionKind {
	switch tag {
	case dwarf.TagClassType:
		return CollectionClass
	case dwarf.TagUnionType:
		return CollectionUnion
	case dwarf.TagEnumerationType:
		return CollectionEnum
	}
	return CollectionStruct
}

func strAttr(e *dwarf.Entry, attr dwarf.Attr) string {
	s, _ := e.Val(attr).(string)
	return s
}

func boolAttr(e *dwarf.Entry, attr dwarf.Attr) bool {
	b, _ := e.Val(attr).(bool)
	return b
}

func offsetAttr(e *dwarf.Entry, attr dwarf.Attr) uint64 {
	off, _ := e.Val(attr).(dwarf.Offset)
	return uint64(off)
}

func intAttr(e *dwarf.Entry, attr dwarf.Attr) (int64, bool) {
	switch v := e.Val(attr).(type) {
	case int64:
		return v, true
	case uint64:
		n, _ := safe.Uint64ToInt64(v)
		return n, true
	}
	return 0, false
}

func linkageName(e *dwarf.Entry) string {
	if name := strAttr(e, dwarf.AttrLinkageName); name != "" {
		return name
	}
	return strAttr(e, attrMIPSLinkageName)
}

func pcRange(e *dwarf.Entry) (uint64, uint64) {
	low, ok := e.Val(dwarf.AttrLowpc).(uint64)
	if !ok {
		return 0, 0
	}
	field := e.AttrField(dwarf.AttrHighpc)
	if field == nil {
		return low, 0
	}
	switch v := field.Val.(type) {
	case uint64:
		return low, v
	case int64:
		// DWARF 4 encodes high_pc as an offset from low_pc.
		return low, low + uint64(v)
	}
	return low, 0
}

// locationAttr parses DW_AT_location. Location lists (optimized code) carry
// no single location and are left empty.
func locationAttr(e *dwarf.Entry, addrSize int) (Location, error) {
	switch v := e.Val(dwarf.AttrLocation).(type) {
	case nil:
		return Location{}, nil
	case []byte:
		return ParseLocation(v, addrSize)
	case int64:
		return Location{}, nil
	default:
		return Location{}, fmt.Errorf("unsupported location form %T", v)
	}
}
