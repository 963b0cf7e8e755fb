// Package memory provides the memory inspectors traversal reads target state
// through: a captured snapshot file and a live Linux process.
package memory

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/varscope/internal/safe"
)

var (
	// ErrUnmapped is returned for reads outside allocated memory.
	ErrUnmapped = errors.New("address not mapped")
	// ErrNoRegister is returned when a register value was not captured.
	ErrNoRegister = errors.New("register not captured")
)

// maxSnapshotSize bounds snapshot files read from disk.
const maxSnapshotSize = 256 << 20

// HexBytes is a byte slice stored as a hex string. Whitespace in the string
// is ignored so large regions can be wrapped.
type HexBytes []byte

// MarshalYAML implements yaml.Marshaler.
func (h HexBytes) MarshalYAML() (any, error) {
	return hex.EncodeToString(h), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *HexBytes) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid hex data: %w", node.Line, err)
	}
	*h = b
	return nil
}

// Span is a byte range relative to a region's start.
type Span struct {
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`
}

// Region is one allocated block. Bytes past the end of Data up to Size are
// allocated but uninitialized, as are the Uninitialized spans.
type Region struct {
	Start         uint64   `yaml:"start"`
	Size          uint64   `yaml:"size,omitempty"`
	Data          HexBytes `yaml:"data,omitempty"`
	Uninitialized []Span   `yaml:"uninitialized,omitempty"`
}

func (r *Region) length() uint64 {
	return max(r.Size, uint64(len(r.Data)))
}

func (r *Region) contains(addr, n uint64) bool {
	end := addr + n
	return addr >= r.Start && end >= addr && end <= r.Start+r.length()
}

func (r *Region) initialized(addr, n uint64) bool {
	off := addr - r.Start
	if off+n > uint64(len(r.Data)) {
		return false
	}
	for _, s := range r.Uninitialized {
		if off < s.Offset+s.Length && s.Offset < off+n {
			return false
		}
	}
	return true
}

// Frame is one captured stack frame.
type Frame struct {
	Function  string            `yaml:"function"`
	PC        uint64            `yaml:"pc,omitempty"`
	FrameBase uint64            `yaml:"frame_base"`
	LowestSP  uint64            `yaml:"lowest_sp"`
	Registers map[string]uint64 `yaml:"registers,omitempty"`
}

// Thread is the captured call stack of one target thread, innermost frame
// first.
type Thread struct {
	ID     int     `yaml:"id"`
	Frames []Frame `yaml:"frames"`
}

// Snapshot is a captured image of a target process. It implements the
// traversal memory inspector over its regions.
type Snapshot struct {
	PointerSize int      `yaml:"pointer_size,omitempty"`
	LoadBias    uint64   `yaml:"load_bias,omitempty"`
	Regions     []Region `yaml:"regions"`
	Threads     []Thread `yaml:"threads,omitempty"`
}

// NewSnapshot returns an empty snapshot of a 64-bit target.
func NewSnapshot() *Snapshot {
	return &Snapshot{PointerSize: 8}
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := safe.ReadFile(path, &safe.ReadOptions{MaxSize: maxSnapshotSize})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	s, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return s, nil
}

// ParseSnapshot decodes snapshot YAML.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	s := NewSnapshot()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.PointerSize != 4 && s.PointerSize != 8 {
		return nil, fmt.Errorf("unsupported pointer size %d", s.PointerSize)
	}
	s.sortRegions()
	for i := 1; i < len(s.Regions); i++ {
		prev := &s.Regions[i-1]
		if prev.Start+prev.length() > s.Regions[i].Start {
			return nil, fmt.Errorf("region at %#x overlaps region at %#x", s.Regions[i].Start, prev.Start)
		}
	}
	return s, nil
}

// Save writes the snapshot atomically.
func (s *Snapshot) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return safe.WriteFileAtomic(path, data, 0o600)
}

func (s *Snapshot) sortRegions() {
	sort.Slice(s.Regions, func(i, j int) bool { return s.Regions[i].Start < s.Regions[j].Start })
}

// AddRegion adds an initialized region holding a copy of data.
func (s *Snapshot) AddRegion(start uint64, data []byte) *Snapshot {
	s.Regions = append(s.Regions, Region{Start: start, Data: append(HexBytes(nil), data...)})
	s.sortRegions()
	return s
}

// AddZeroRegion adds a zero-filled, initialized region.
func (s *Snapshot) AddZeroRegion(start, size uint64) *Snapshot {
	return s.AddRegion(start, make([]byte, size))
}

// AddUninitializedRegion adds an allocated region with no initialized bytes.
func (s *Snapshot) AddUninitializedRegion(start, size uint64) *Snapshot {
	s.Regions = append(s.Regions, Region{Start: start, Size: size})
	s.sortRegions()
	return s
}

// MarkUninitialized flags [addr, addr+n) as uninitialized.
func (s *Snapshot) MarkUninitialized(addr, n uint64) *Snapshot {
	if r := s.region(addr, n); r != nil {
		r.Uninitialized = append(r.Uninitialized, Span{Offset: addr - r.Start, Length: n})
	}
	return s
}

// Write copies data into an existing region.
func (s *Snapshot) Write(addr uint64, data []byte) error {
	r := s.region(addr, uint64(len(data)))
	if r == nil || addr-r.Start+uint64(len(data)) > uint64(len(r.Data)) {
		return fmt.Errorf("write %d bytes at %#x: %w", len(data), addr, ErrUnmapped)
	}
	copy(r.Data[addr-r.Start:], data)
	return nil
}

// WriteUint64 stores a little-endian 64-bit value.
func (s *Snapshot) WriteUint64(addr, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return s.Write(addr, buf[:])
}

// WriteUint32 stores a little-endian 32-bit value.
func (s *Snapshot) WriteUint32(addr uint64, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return s.Write(addr, buf[:])
}

// PushFrame appends a frame to a thread's stack, creating the thread.
func (s *Snapshot) PushFrame(threadID int, f Frame) *Snapshot {
	for i := range s.Threads {
		if s.Threads[i].ID == threadID {
			s.Threads[i].Frames = append(s.Threads[i].Frames, f)
			return s
		}
	}
	s.Threads = append(s.Threads, Thread{ID: threadID, Frames: []Frame{f}})
	return s
}

// Thread returns the captured stack of a thread.
func (s *Snapshot) Thread(id int) (*Thread, bool) {
	for i := range s.Threads {
		if s.Threads[i].ID == id {
			return &s.Threads[i], true
		}
	}
	return nil, false
}

func (s *Snapshot) region(addr, n uint64) *Region {
	i := sort.Search(len(s.Regions), func(i int) bool {
		return s.Regions[i].Start+s.Regions[i].length() > addr
	})
	if i < len(s.Regions) && s.Regions[i].contains(addr, n) {
		return &s.Regions[i]
	}
	return nil
}

// IsAllocated reports whether every byte of [addr, addr+n) is inside a
// region.
func (s *Snapshot) IsAllocated(addr uint64, n int) bool {
	if n <= 0 {
		n = 1
	}
	return s.region(addr, uint64(n)) != nil
}

// IsInitialized reports whether every byte of [addr, addr+n) was captured
// and not flagged uninitialized.
func (s *Snapshot) IsInitialized(addr uint64, n int) bool {
	if n <= 0 {
		n = 1
	}
	r := s.region(addr, uint64(n))
	return r != nil && r.initialized(addr, uint64(n))
}

// ReadBytes copies n bytes at addr. Allocated bytes that were never
// captured read as zero.
func (s *Snapshot) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	r := s.region(addr, uint64(n))
	if r == nil {
		return nil, fmt.Errorf("read %d bytes at %#x: %w", n, addr, ErrUnmapped)
	}
	out := make([]byte, n)
	off := addr - r.Start
	if off < uint64(len(r.Data)) {
		copy(out, r.Data[off:])
	}
	return out, nil
}

// ReadRegister returns a register captured in the innermost frame of a
// thread.
func (s *Snapshot) ReadRegister(name string, threadID int) (uint64, error) {
	th, ok := s.Thread(threadID)
	if !ok || len(th.Frames) == 0 {
		return 0, fmt.Errorf("thread %d: %w", threadID, ErrNoRegister)
	}
	v, ok := th.Frames[0].Registers[name]
	if !ok {
		return 0, fmt.Errorf("register %s of thread %d: %w", name, threadID, ErrNoRegister)
	}
	return v, nil
}
