package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/memory"
	"github.com/coral-mesh/varscope/internal/session"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/traversal"
)

func TestLocate(t *testing.T) {
	snap := memory.NewSnapshot().PushFrame(1, memory.Frame{
		Function:  "f",
		Registers: map[string]uint64{"r7": 0x5000},
	})
	ectx := &traversal.ExecutionContext{
		FrameBase: 0x8000,
		LoadBias:  0x100000,
		ThreadID:  1,
		Registers: map[string]uint64{"r6": 0x4000},
		Memory:    snap,
	}

	tests := []struct {
		name   string
		v      *symtab.Variable
		want   traversal.Location
		wantOK bool
	}{
		{
			name:   "frame offset",
			v:      &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationFrameOffset, Offset: -16}},
			want:   traversal.AtAddress(0x7ff0),
			wantOK: true,
		},
		{
			name:   "static local",
			v:      &symtab.Variable{Address: 0x601000, HasAddress: true},
			want:   traversal.AtAddress(0x701000),
			wantOK: true,
		},
		{
			name:   "address expression",
			v:      &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationAddress, Address: 0x602000}},
			want:   traversal.AtAddress(0x702000),
			wantOK: true,
		},
		{
			name:   "register",
			v:      &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationRegister, Register: 5}},
			want:   traversal.InRegister("r5"),
			wantOK: true,
		},
		{
			name:   "captured register offset",
			v:      &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationRegisterOffset, Register: 6, Offset: 8}},
			want:   traversal.AtAddress(0x4008),
			wantOK: true,
		},
		{
			name:   "inspector register offset",
			v:      &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationRegisterOffset, Register: 7, Offset: -8}},
			want:   traversal.AtAddress(0x4ff8),
			wantOK: true,
		},
		{
			name: "unknown register",
			v:    &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationRegisterOffset, Register: 9}},
		},
		{
			name:   "return value",
			v:      &symtab.Variable{Scope: symtab.ScopeReturn},
			want:   traversal.InRegister(session.ReturnRegister),
			wantOK: true,
		},
		{
			name: "no location",
			v:    &symtab.Variable{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := session.Locate(ectx, tt.v)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLocate_FrameOffsetWithoutFrame(t *testing.T) {
	v := &symtab.Variable{Location: dwarfgraph.Location{Kind: dwarfgraph.LocationFrameOffset, Offset: 8}}
	_, ok := session.Locate(&traversal.ExecutionContext{}, v)
	assert.False(t, ok)
}
