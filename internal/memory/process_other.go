//go:build !linux

package memory

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/sys/proc"
)

// Process is unavailable on this platform.
type Process struct{}

// OpenProcess always fails outside linux.
func OpenProcess(int, int, zerolog.Logger) (*Process, error) {
	return nil, ErrUnsupported
}

func (p *Process) Pid() int {
	return 0
}

func (p *Process) Executable() (string, error) {
	return "", ErrUnsupported
}

func (p *Process) LoadBias() (uint64, error) {
	return 0, ErrUnsupported
}

func (p *Process) Refresh() error {
	return ErrUnsupported
}

func (p *Process) Mappings() []proc.Mapping {
	return nil
}

func (p *Process) IsAllocated(uint64, int) bool {
	return false
}

func (p *Process) IsInitialized(uint64, int) bool {
	return false
}

func (p *Process) ReadBytes(uint64, int) ([]byte, error) {
	return nil, ErrUnsupported
}

func (p *Process) ReadRegister(string, int) (uint64, error) {
	return 0, ErrUnsupported
}
