package helpers

import (
	"fmt"

	"github.com/coral-mesh/varscope/internal/memory"
	"github.com/coral-mesh/varscope/internal/session"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// Target is the memory a walk reads and the context for its globals.
type Target struct {
	Globals *traversal.ExecutionContext
	// Process is set for live targets.
	Process *memory.Process
}

// OpenSnapshot loads a snapshot file and the thread stacks it captured into
// s.
func OpenSnapshot(s *session.Session, path string) (*Target, error) {
	snap, err := memory.LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if err := s.LoadThreads(snap); err != nil {
		return nil, err
	}
	return &Target{
		Globals: session.GlobalContext(snap, snap.LoadBias),
	}, nil
}

// OpenProcess attaches to a live process for reading.
func (e *Env) OpenProcess(pid int) (*Target, error) {
	p, err := memory.OpenProcess(pid, e.Config.Cache.PageCacheSize, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	bias, err := p.LoadBias()
	if err != nil {
		return nil, err
	}
	e.Logger.Debug().Int("pid", pid).Uint64("load_bias", bias).Msg("Attached to process")
	return &Target{
		Globals: session.GlobalContext(p, bias),
		Process: p,
	}, nil
}

// NewManager creates the program cache sized by the config.
func (e *Env) NewManager() (*session.Manager, error) {
	return session.NewManager(e.Config.Cache.ProgramCacheSize, e.Logger)
}
