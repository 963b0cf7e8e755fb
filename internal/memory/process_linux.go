//go:build linux

package memory

import (
	"debug/elf"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/coral-mesh/varscope/internal/errors"
	"github.com/coral-mesh/varscope/internal/sys/proc"
)

// Process inspects a live process through process_vm_readv. Pages read from
// the target are cached until Refresh, so one walk sees a consistent view of
// each page it touches.
//
// A live process cannot tell initialized from uninitialized memory, so
// IsInitialized is the same as IsAllocated. Registers are not available.
type Process struct {
	pid    int
	logger zerolog.Logger

	mu    sync.Mutex
	maps  []proc.Mapping
	pages *lru.Cache[uint64, []byte]
}

// OpenProcess attaches to a running process for reading.
func OpenProcess(pid int, pageCacheSize int, logger zerolog.Logger) (*Process, error) {
	logger = logger.With().Str("component", "process-memory").Int("pid", pid).Logger()

	//nolint:gosec // G115: pids fit in int32.
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to check pid %d: %w", pid, err)
	}
	if !exists {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNoProcess)
	}

	if pageCacheSize <= 0 {
		pageCacheSize = DefaultPageCacheSize
	}
	pages, err := lru.New[uint64, []byte](pageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}

	p := &Process{
		pid:    pid,
		logger: logger,
		pages:  pages,
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p, nil
}

// Pid returns the target pid.
func (p *Process) Pid() int { return p.pid }

// Executable resolves the path of the target's executable.
func (p *Process) Executable() (string, error) {
	//nolint:gosec // G115: pids fit in int32.
	ps, err := process.NewProcess(int32(p.pid))
	if err == nil {
		if exe, err := ps.Exe(); err == nil && exe != "" {
			return exe, nil
		}
	}
	return proc.GetBinaryPath(p.pid)
}

// LoadBias returns how far the target's executable was relocated from its
// link-time addresses.
func (p *Process) LoadBias() (uint64, error) {
	exe, err := p.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable of pid %d: %w", p.pid, err)
	}
	f, err := elf.Open(exe)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", exe, err)
	}
	defer errors.DeferClose(p.logger, f, "failed to close executable")

	return proc.LoadBias(p.Mappings(), exe, f)
}

// Refresh reloads the memory map and drops cached pages. Call it between
// observations of a running target.
func (p *Process) Refresh() error {
	maps, err := proc.ReadMaps(p.pid)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.maps = maps
	p.pages.Purge()

	p.logger.Debug().Int("mappings", len(maps)).Msg("Refreshed memory map")
	return nil
}

// Mappings returns the memory map from the last Refresh.
func (p *Process) Mappings() []proc.Mapping {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maps
}

// IsAllocated reports whether [addr, addr+n) is inside one readable mapping.
func (p *Process) IsAllocated(addr uint64, n int) bool {
	if n <= 0 {
		n = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.maps {
		if m.Readable() && m.Contains(addr, uint64(n)) {
			return true
		}
	}
	return false
}

// IsInitialized is IsAllocated for a live process.
func (p *Process) IsInitialized(addr uint64, n int) bool {
	return p.IsAllocated(addr, n)
}

// ReadBytes reads n bytes at addr through the page cache.
func (p *Process) ReadBytes(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	if !p.IsAllocated(addr, n) {
		return nil, fmt.Errorf("read %d bytes at %#x: %w", n, addr, ErrUnmapped)
	}

	out := make([]byte, 0, n)
	for cur, end := addr, addr+uint64(n); cur < end; {
		base := cur &^ (pageSize - 1)
		page, err := p.page(base)
		if err != nil {
			return nil, err
		}
		chunk := page[cur-base:]
		if remaining := end - cur; uint64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
		cur += uint64(len(chunk))
	}
	return out, nil
}

// ReadRegister is not supported on live processes; frame unwinding is out
// of scope.
func (p *Process) ReadRegister(name string, threadID int) (uint64, error) {
	return 0, fmt.Errorf("register %s of thread %d: %w", name, threadID, ErrNoRegister)
}

func (p *Process) page(base uint64) ([]byte, error) {
	if page, ok := p.pages.Get(base); ok {
		return page, nil
	}

	buf := make([]byte, pageSize)
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(pageSize)
	remote := []unix.RemoteIovec{{Base: uintptr(base), Len: pageSize}}

	n, err := unix.ProcessVMReadv(p.pid, local, remote, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read page %#x of pid %d: %w", base, p.pid, err)
	}
	if n != pageSize {
		return nil, fmt.Errorf("short read of page %#x: %d bytes: %w", base, n, ErrUnmapped)
	}

	p.pages.Add(base, buf)
	return buf, nil
}
