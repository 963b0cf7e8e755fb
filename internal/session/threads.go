package session

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/coral-mesh/varscope/internal/memory"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// ThreadStacks holds one stack of execution contexts per target thread.
// Contexts are pushed on function entry and popped on exit; the top of a
// stack is the innermost frame.
type ThreadStacks struct {
	mu     sync.Mutex
	stacks map[int][]*traversal.ExecutionContext
}

// NewThreadStacks returns empty stacks.
func NewThreadStacks() *ThreadStacks {
	return &ThreadStacks{stacks: make(map[int][]*traversal.ExecutionContext)}
}

// Push makes ectx the innermost frame of its thread.
func (t *ThreadStacks) Push(ectx *traversal.ExecutionContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stacks[ectx.ThreadID] = append(t.stacks[ectx.ThreadID], ectx)
}

// Pop removes and returns the innermost frame of a thread.
func (t *ThreadStacks) Pop(threadID int) (*traversal.ExecutionContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.stacks[threadID]
	if len(stack) == 0 {
		return nil, false
	}
	top := stack[len(stack)-1]
	stack[len(stack)-1] = nil
	if len(stack) == 1 {
		delete(t.stacks, threadID)
	} else {
		t.stacks[threadID] = stack[:len(stack)-1]
	}
	return top, true
}

// Top returns the innermost frame of a thread.
func (t *ThreadStacks) Top(threadID int) (*traversal.ExecutionContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.stacks[threadID]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// Depth is the number of frames on a thread's stack.
func (t *ThreadStacks) Depth(threadID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stacks[threadID])
}

// Threads returns the ids of threads with at least one frame, ascending.
func (t *ThreadStacks) Threads() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Sorted(maps.Keys(t.stacks))
}

// Reset drops every stack.
func (t *ThreadStacks) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.stacks)
}

// LoadThreads replaces the thread stacks with the frames captured in snap.
// A frame's function is found by name, or by its pc when unnamed. Frames of
// functions the binary does not describe keep a nil Frame.
func (s *Session) LoadThreads(snap *memory.Snapshot) error {
	s.mu.Lock()
	prog := s.prog
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateNew:
		return ErrNotBuilt
	case StateFinished:
		return ErrFinished
	}

	s.threads.Reset()
	for _, th := range snap.Threads {
		// Innermost first in the snapshot; push outermost first.
		for i := len(th.Frames) - 1; i >= 0; i-- {
			f := th.Frames[i]
			fn := frameFunction(prog, f, snap.LoadBias)
			if fn == nil {
				s.logger.Debug().
					Int("thread", th.ID).
					Str("function", f.Function).
					Uint64("pc", f.PC).
					Msg("Frame function not described by the binary")
			}
			s.threads.Push(&traversal.ExecutionContext{
				FrameBase: f.FrameBase,
				LowestSP:  f.LowestSP,
				LoadBias:  snap.LoadBias,
				ThreadID:  th.ID,
				Registers: maps.Clone(f.Registers),
				Frame:     fn,
				Memory:    snap,
			})
		}
	}
	return nil
}

func frameFunction(prog *symtab.Program, f memory.Frame, bias uint64) *symtab.Function {
	if f.Function != "" {
		return prog.Function(f.Function)
	}
	if f.PC < bias {
		return nil
	}
	return prog.FunctionAt(f.PC - bias)
}

// GlobalContext returns an execution context with no frame, for walking
// globals of an inspected target.
func GlobalContext(mem traversal.MemoryInspector, bias uint64) *traversal.ExecutionContext {
	return &traversal.ExecutionContext{LoadBias: bias, Memory: mem}
}

// ThreadContext returns the innermost context of a thread.
func (s *Session) ThreadContext(threadID int) (*traversal.ExecutionContext, error) {
	ectx, ok := s.threads.Top(threadID)
	if !ok {
		return nil, fmt.Errorf("thread %d: %w", threadID, ErrNoFrame)
	}
	return ectx, nil
}
