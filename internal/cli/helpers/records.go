package helpers

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// maxShownElements caps the values rendered for one sequence record.
const maxShownElements = 8

// RecordRow is the presentation of one traversal record.
type RecordRow struct {
	Name      string   `json:"name" header:"NAME"`
	Type      string   `json:"type" header:"TYPE"`
	Scope     string   `json:"scope" header:"SCOPE"`
	Depth     int      `json:"depth" header:"DEPTH"`
	Sequence  bool     `json:"sequence" header:"SEQ"`
	Count     int      `json:"count" header:"COUNT"`
	Address   string   `json:"address" header:"ADDRESS"`
	Value     string   `json:"value" header:"VALUE"`
	Addresses []string `json:"addresses,omitempty"`
	Values    []string `json:"values,omitempty"`
}

// NewRecordRow renders r.
func NewRecordRow(r traversal.Record) RecordRow {
	row := RecordRow{
		Name:     r.Name,
		Depth:    r.Depth,
		Sequence: r.Sequence,
		Count:    len(r.Elements),
	}
	if r.Type != nil {
		row.Type = r.Type.DisplayName()
	}
	if r.Variable != nil {
		row.Scope = r.Variable.Scope.String()
	}

	for _, el := range r.Elements {
		row.Addresses = append(row.Addresses, formatAddress(el))
		row.Values = append(row.Values, FormatValue(r, el))
	}
	if len(row.Addresses) > 0 {
		row.Address = row.Addresses[0]
	}

	switch {
	case len(row.Values) == 0:
	case !r.Sequence:
		row.Value = row.Values[0]
	default:
		shown := row.Values
		suffix := ""
		if len(shown) > maxShownElements {
			shown = shown[:maxShownElements]
			suffix = " ..."
		}
		row.Value = "[" + strings.Join(shown, " ") + suffix + "]"
	}
	return row
}

func formatAddress(el traversal.Element) string {
	if el.InRegister {
		return "register"
	}
	return fmt.Sprintf("%#x", el.Address)
}

// FormatValue renders one element of r: a pointer in hex when indirections
// remain, a decoded string, or the scalar by its base type. Unallocated
// elements render as "-" and uninitialized ones as "?".
func FormatValue(r traversal.Record, el traversal.Element) string {
	switch {
	case !el.Allocated && !el.InRegister:
		return "-"
	case !el.Initialized && !el.InRegister:
		return "?"
	case textual(r.Repr):
		return strconv.Quote(el.Text)
	}

	data := el.Data
	if len(data) == 0 {
		if el.InRegister {
			return fmt.Sprintf("%#x", el.Value)
		}
		return ""
	}
	if r.Depth > 0 {
		return fmt.Sprintf("%#x", readUint(data))
	}
	if r.Type == nil {
		return fmt.Sprintf("%x", data)
	}
	return formatScalar(r.Type, data)
}

func textual(repr disambig.Representation) bool {
	switch repr {
	case disambig.ReprString, disambig.ReprOneCharString, disambig.ReprCharAsString:
		return true
	}
	return false
}

func formatScalar(t *symtab.Type, data []byte) string {
	switch t.Kind {
	case symtab.KindBool:
		return strconv.FormatBool(readUint(data) != 0)
	case symtab.KindChar:
		return strconv.QuoteRune(rune(int8(data[0])))
	case symtab.KindUnsignedChar:
		return strconv.QuoteRune(rune(data[0]))
	case symtab.KindShort, symtab.KindInt, symtab.KindLongLong:
		return strconv.FormatInt(readInt(data), 10)
	case symtab.KindUnsignedShort, symtab.KindUnsignedInt, symtab.KindUnsignedLongLong:
		return strconv.FormatUint(readUint(data), 10)
	case symtab.KindFloat:
		if len(data) >= 4 {
			return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 'g', -1, 32)
		}
	case symtab.KindDouble:
		if len(data) >= 8 {
			return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(data)), 'g', -1, 64)
		}
	case symtab.KindEnum:
		v := readInt(data)
		for _, e := range t.Enumerators {
			if e.Value == v {
				return e.Name
			}
		}
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf("%x", data)
}

func readUint(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:])
}

// readInt sign-extends a little-endian value of 1, 2, 4 or 8 bytes.
func readInt(data []byte) int64 {
	switch len(data) {
	case 1:
		return int64(int8(data[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(data)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(data)))
	}
	return int64(readUint(data))
}
