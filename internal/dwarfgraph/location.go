package dwarfgraph

import (
	"encoding/binary"
	"fmt"
)

// LocationKind describes where a variable lives.
type LocationKind int

const (
	LocationNone LocationKind = iota
	// LocationAddress is a static address (DW_OP_addr).
	LocationAddress
	// LocationRegister is a value held in a register (DW_OP_regN, DW_OP_regx).
	LocationRegister
	// LocationRegisterOffset is memory at register + offset (DW_OP_bregN).
	LocationRegisterOffset
	// LocationFrameOffset is memory at frame base + offset (DW_OP_fbreg).
	LocationFrameOffset
	// LocationFrameCFA marks a frame base equal to the call frame address.
	LocationFrameCFA
)

// Location is a parsed DWARF location expression. Only the single-operation
// forms compilers emit for unoptimized variables are understood.
type Location struct {
	Kind     LocationKind
	Register int
	Offset   int64
	Address  uint64
}

// DWARF location expression opcodes.
const (
	opAddr         = 0x03
	opPlusUconst   = 0x23
	opReg0         = 0x50
	opReg31        = 0x6f
	opBreg0        = 0x70
	opBreg31       = 0x8f
	opRegx         = 0x90
	opFbreg        = 0x91
	opBregx        = 0x92
	opCallFrameCFA = 0x9c
)

// ParseLocation parses a DWARF location expression. addrSize is the target's
// address width in bytes (4 or 8).
func ParseLocation(expr []byte, addrSize int) (Location, error) {
	if len(expr) == 0 {
		return Location{}, fmt.Errorf("empty location expression")
	}

	op := expr[0]
	switch {
	case op >= opReg0 && op <= opReg31:
		return Location{Kind: LocationRegister, Register: int(op - opReg0)}, nil

	case op == opRegx:
		regNum, n := decodeULEB128(expr[1:])
		if n == 0 {
			return Location{}, fmt.Errorf("DW_OP_regx: invalid ULEB128")
		}
		return Location{Kind: LocationRegister, Register: int(regNum)}, nil

	case op == opFbreg:
		offset, n := decodeSLEB128(expr[1:])
		if n == 0 {
			return Location{}, fmt.Errorf("DW_OP_fbreg: invalid SLEB128")
		}
		return Location{Kind: LocationFrameOffset, Offset: offset}, nil

	case op >= opBreg0 && op <= opBreg31:
		offset, n := decodeSLEB128(expr[1:])
		if n == 0 {
			return Location{}, fmt.Errorf("DW_OP_breg: invalid SLEB128")
		}
		return Location{Kind: LocationRegisterOffset, Register: int(op - opBreg0), Offset: offset}, nil

	case op == opBregx:
		regNum, n := decodeULEB128(expr[1:])
		if n == 0 {
			return Location{}, fmt.Errorf("DW_OP_bregx: invalid ULEB128")
		}
		offset, m := decodeSLEB128(expr[1+n:])
		if m == 0 {
			return Location{}, fmt.Errorf("DW_OP_bregx: invalid SLEB128")
		}
		return Location{Kind: LocationRegisterOffset, Register: int(regNum), Offset: offset}, nil

	case op == opAddr:
		switch addrSize {
		case 4:
			if len(expr) < 5 {
				return Location{}, fmt.Errorf("DW_OP_addr: truncated expression")
			}
			return Location{Kind: LocationAddress, Address: uint64(binary.LittleEndian.Uint32(expr[1:5]))}, nil
		case 8:
			if len(expr) < 9 {
				return Location{}, fmt.Errorf("DW_OP_addr: truncated expression")
			}
			return Location{Kind: LocationAddress, Address: binary.LittleEndian.Uint64(expr[1:9])}, nil
		}
		return Location{}, fmt.Errorf("DW_OP_addr: unsupported address size %d", addrSize)

	case op == opCallFrameCFA:
		return Location{Kind: LocationFrameCFA}, nil
	}

	return Location{}, fmt.Errorf("unsupported location opcode: 0x%02x", op)
}

// ParseMemberOffset decodes a DWARF 2 style data member location of the form
// DW_OP_plus_uconst N.
func ParseMemberOffset(expr []byte) (int64, error) {
	if len(expr) == 0 || expr[0] != opPlusUconst {
		return 0, fmt.Errorf("unsupported member location expression")
	}
	off, n := decodeULEB128(expr[1:])
	if n == 0 {
		return 0, fmt.Errorf("DW_OP_plus_uconst: invalid ULEB128")
	}
	return int64(off), nil
}

// RegisterName is the name used to ask a memory inspector for a DWARF
// register number.
func RegisterName(reg int) string {
	return fmt.Sprintf("r%d", reg)
}

// decodeULEB128 decodes an unsigned LEB128 value.
// Returns the value and number of bytes consumed.
func decodeULEB128(data []byte) (uint64, int) {
	var result uint64
	var shift uint

	for i := 0; i < len(data) && i < 10; i++ {
		b := data[i]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
	}

	return 0, 0
}

// decodeSLEB128 decodes a signed LEB128 value.
// Returns the value and number of bytes consumed.
func decodeSLEB128(data []byte) (int64, int) {
	var result int64
	var shift uint

	for i := 0; i < len(data) && i < 10; i++ {
		b := data[i]
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && (b&0x40) != 0 {
				result |= -(1 << shift)
			}
			return result, i + 1
		}
	}

	return 0, 0
}

// String returns a human-readable description of the location.
func (l Location) String() string {
	switch l.Kind {
	case LocationAddress:
		return fmt.Sprintf("addr:0x%x", l.Address)
	case LocationRegister:
		return RegisterName(l.Register)
	case LocationRegisterOffset:
		return fmt.Sprintf("%s%+d", RegisterName(l.Register), l.Offset)
	case LocationFrameOffset:
		return fmt.Sprintf("fbreg%+d", l.Offset)
	case LocationFrameCFA:
		return "cfa"
	}
	return "<none>"
}
