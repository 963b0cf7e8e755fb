package proc

import (
	"debug/elf"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d4c3a00000-55d4c3a01000 r--p 00000000 fd:01 1234                       /usr/bin/app
55d4c3a01000-55d4c3a03000 r-xp 00001000 fd:01 1234                       /usr/bin/app
55d4c3c02000-55d4c3c03000 rw-p 00002000 fd:01 1234                       /usr/bin/app
55d4c4000000-55d4c4021000 rw-p 00000000 00:00 0                          [heap]
7ffd1c5a0000-7ffd1c5c1000 rw-p 00000000 00:00 0                          [stack]
7f00aa000000-7f00aa001000 ---p 00000000 00:00 0
garbage line
`

func TestParseMaps(t *testing.T) {
	maps, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, maps, 6)

	assert.Equal(t, Mapping{
		Start:  0x55d4c3a01000,
		End:    0x55d4c3a03000,
		Perms:  "r-xp",
		Offset: 0x1000,
		Path:   "/usr/bin/app",
	}, maps[1])
	assert.Equal(t, "[heap]", maps[3].Path)
	assert.Empty(t, maps[5].Path)
	assert.False(t, maps[5].Readable())
	assert.True(t, maps[4].Readable())
}

func TestMapping_Contains(t *testing.T) {
	m := Mapping{Start: 0x1000, End: 0x2000}

	tests := []struct {
		name string
		addr uint64
		n    uint64
		want bool
	}{
		{"start", 0x1000, 8, true},
		{"last byte", 0x1fff, 1, true},
		{"straddles end", 0x1ffc, 8, false},
		{"before", 0xfff, 1, false},
		{"overflow", ^uint64(0) - 2, 8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Contains(tt.addr, tt.n))
		})
	}
}

func TestFindMapping(t *testing.T) {
	maps, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	m, ok := FindMapping(maps, 0x55d4c4000010)
	require.True(t, ok)
	assert.Equal(t, "[heap]", m.Path)

	_, ok = FindMapping(maps, 0x10)
	assert.False(t, ok)
}

func TestLoadBias_Executable(t *testing.T) {
	f := &elf.File{FileHeader: elf.FileHeader{Type: elf.ET_EXEC}}
	bias, err := LoadBias(nil, "/usr/bin/app", f)
	require.NoError(t, err)
	assert.Zero(t, bias)
}

func TestLoadBias_SelfProcess(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc")
	}

	exe, err := GetBinaryPath(os.Getpid())
	require.NoError(t, err)

	f, err := elf.Open(exe)
	require.NoError(t, err)
	defer f.Close() // nolint:errcheck

	maps, err := ReadMaps(os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, maps)

	bias, err := LoadBias(maps, exe, f)
	require.NoError(t, err)
	if f.Type == elf.ET_EXEC {
		assert.Zero(t, bias)
	}
}
