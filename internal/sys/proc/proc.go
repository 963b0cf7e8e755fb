// Package proc reads process information from the /proc filesystem on Linux
// systems: memory mappings and the load bias of position-independent
// executables.
package proc

import (
	"bufio"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start  uint64
	End    uint64
	Perms  string
	Offset uint64
	Path   string
}

// Readable reports whether the mapping can be read.
func (m Mapping) Readable() bool { return len(m.Perms) > 0 && m.Perms[0] == 'r' }

// Contains reports whether [addr, addr+n) lies inside the mapping.
func (m Mapping) Contains(addr, n uint64) bool {
	return addr >= m.Start && addr+n >= addr && addr+n <= m.End
}

// ParseMaps parses the /proc/<pid>/maps format. Lines that do not parse are
// skipped.
func ParseMaps(r io.Reader) ([]Mapping, error) {
	var maps []Mapping

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		maps = append(maps, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read maps: %w", err)
	}
	return maps, nil
}

// Example line:
// 55d4c3a00000-55d4c3a02000 r-xp 00001000 fd:01 1234   /usr/bin/app
func parseMapsLine(line string) (Mapping, bool) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Mapping{}, false
	}

	start, end, ok := strings.Cut(fields[0], "-")
	if !ok {
		return Mapping{}, false
	}
	startAddr, err := strconv.ParseUint(start, 16, 64)
	if err != nil {
		return Mapping{}, false
	}
	endAddr, err := strconv.ParseUint(end, 16, 64)
	if err != nil || endAddr < startAddr {
		return Mapping{}, false
	}
	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return Mapping{}, false
	}

	m := Mapping{
		Start:  startAddr,
		End:    endAddr,
		Perms:  fields[1],
		Offset: offset,
	}
	if len(fields) >= 6 {
		m.Path = strings.Join(fields[5:], " ")
	}
	return m, true
}

// ReadMaps reads the mappings of a live process.
func ReadMaps(pid int) ([]Mapping, error) {
	//nolint:gosec // G304: Path is from /proc filesystem for system information.
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open maps for pid %d: %w", pid, err)
	}
	defer f.Close() // nolint:errcheck

	return ParseMaps(f)
}

// FindMapping returns the mapping containing addr.
func FindMapping(maps []Mapping, addr uint64) (Mapping, bool) {
	for _, m := range maps {
		if m.Contains(addr, 1) {
			return m, true
		}
	}
	return Mapping{}, false
}

// LoadBias computes how far a position-independent executable was moved
// from its link-time addresses. Fixed-address executables have bias 0.
func LoadBias(maps []Mapping, exePath string, f *elf.File) (uint64, error) {
	if f.Type != elf.ET_DYN {
		return 0, nil
	}

	var firstLoad *elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			firstLoad = p
			break
		}
	}
	if firstLoad == nil {
		return 0, fmt.Errorf("no PT_LOAD segment in %s", exePath)
	}

	for _, m := range maps {
		if m.Path != exePath || m.Offset != firstLoad.Off&^(pageSize-1) {
			continue
		}
		linked := firstLoad.Vaddr &^ (pageSize - 1)
		return m.Start - linked, nil
	}
	return 0, fmt.Errorf("no mapping of %s found", exePath)
}

const pageSize = 0x1000

// GetBinaryPath returns the path to the executable for the given PID.
func GetBinaryPath(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
}
