// Package session ties the debug entry graph, the descriptor table, the
// disambiguation policy and the traversal engine of one inspected binary
// together.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/disambig"
	"github.com/coral-mesh/varscope/internal/dwarfgraph"
	"github.com/coral-mesh/varscope/internal/symtab"
	"github.com/coral-mesh/varscope/internal/traversal"
)

var (
	// ErrNotBuilt is returned when walking before Build.
	ErrNotBuilt = errors.New("session not built")
	// ErrAlreadyBuilt is returned when Build runs twice.
	ErrAlreadyBuilt = errors.New("session already built")
	// ErrFinished is returned for any use after Finish.
	ErrFinished = errors.New("session finished")
	// ErrPolicyConflict is returned when the generated policy would
	// overwrite the policy file that was loaded.
	ErrPolicyConflict = errors.New("policy output is the loaded policy file")
	// ErrNoFrame is returned when a thread has no execution context.
	ErrNoFrame = errors.New("no frame")
)

// State is the lifecycle stage of a session.
type State string

const (
	StateNew      State = "new"
	StateBuilt    State = "built"
	StateRunning  State = "running"
	StateFinished State = "finished"
)

// Options configure a session.
type Options struct {
	Traversal traversal.Options
	Disambig  disambig.Options

	// PolicyFile is read once at build time.
	PolicyFile string
	// GeneratePolicyFile turns on learning; Finish writes the learned
	// policy there.
	GeneratePolicyFile string

	Metrics *traversal.Metrics
	// Manager, when set, serves linked graphs from its cache.
	Manager *Manager
}

// Session is one inspection of one binary.
type Session struct {
	ID string

	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	graph   *dwarfgraph.Graph
	prog    *symtab.Program
	policy  *disambig.Policy
	obs     *disambig.Observations
	engine  *traversal.Engine
	threads *ThreadStacks
}

// New creates an unbuilt session.
func New(opts Options, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:      id,
		opts:    opts,
		logger:  logger.With().Str("component", "session").Str("session_id", id).Logger(),
		state:   StateNew,
		threads: NewThreadStacks(),
	}
}

// Build decodes and links the debug information of the binary at path.
func (s *Session) Build(ctx context.Context, path string) error {
	var g *dwarfgraph.Graph
	if s.opts.Manager != nil {
		built, err := s.opts.Manager.Load(ctx, path)
		if err != nil {
			return err
		}
		g = built.Graph
	} else {
		entries, err := dwarfgraph.Decode(ctx, path, s.logger)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		g, err = dwarfgraph.Build(entries, s.logger)
		if err != nil {
			return err
		}
	}
	return s.BuildGraph(g)
}

// BuildGraph builds the descriptor table from an already linked graph,
// applies the policy file and creates the engine.
func (s *Session) BuildGraph(g *dwarfgraph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNew:
	case StateFinished:
		return ErrFinished
	default:
		return ErrAlreadyBuilt
	}

	if s.opts.PolicyFile != "" && s.opts.GeneratePolicyFile != "" &&
		samePath(s.opts.PolicyFile, s.opts.GeneratePolicyFile) {
		return fmt.Errorf("%s: %w", s.opts.GeneratePolicyFile, ErrPolicyConflict)
	}

	prog, err := symtab.Build(g, s.logger)
	if err != nil {
		return fmt.Errorf("failed to build descriptors: %w", err)
	}

	obs := disambig.NewObservations()
	policy := disambig.NewPolicy(s.opts.Disambig, obs, s.logger)
	if s.opts.PolicyFile != "" {
		f, err := disambig.ReadPolicy(s.opts.PolicyFile, s.logger)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		policy.Apply(prog, f)
	}

	engine := traversal.NewEngine(prog, policy, s.opts.Traversal, s.logger, s.opts.Metrics)
	if s.opts.GeneratePolicyFile != "" {
		engine.SetObserver(obs)
	}

	s.graph = g
	s.prog = prog
	s.obs = obs
	s.policy = policy
	s.engine = engine
	s.state = StateBuilt

	s.logger.Info().
		Int("globals", len(prog.Globals())).
		Int("functions", len(prog.Functions())).
		Int("types", len(prog.Types())).
		Bool("learning", s.opts.GeneratePolicyFile != "").
		Msg("Session built")
	return nil
}

// State returns the lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Graph returns the linked graph, nil before Build.
func (s *Session) Graph() *dwarfgraph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// Program returns the descriptor table, nil before Build.
func (s *Session) Program() *symtab.Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prog
}

// Policy returns the disambiguation policy, nil before Build.
func (s *Session) Policy() *disambig.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// Threads returns the per-thread execution context stacks.
func (s *Session) Threads() *ThreadStacks { return s.threads }

// running moves a built session to running and returns its engine.
func (s *Session) running() (*traversal.Engine, *symtab.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateNew:
		return nil, nil, ErrNotBuilt
	case StateFinished:
		return nil, nil, ErrFinished
	}
	s.state = StateRunning
	return s.engine, s.prog, nil
}

// WalkGlobals walks the named globals, or every global when names is empty.
// Unknown names are skipped with a warning.
func (s *Session) WalkGlobals(ectx *traversal.ExecutionContext, names []string, consume traversal.Consumer) error {
	engine, prog, err := s.running()
	if err != nil {
		return err
	}

	vars := prog.Globals()
	if len(names) > 0 {
		vars = make([]*symtab.Variable, 0, len(names))
		for _, name := range names {
			v := prog.Global(name)
			if v == nil {
				s.logger.Warn().Str("variable", name).Msg("No such global")
				continue
			}
			vars = append(vars, v)
		}
	}

	for _, v := range vars {
		if !v.HasAddress {
			continue
		}
		engine.Visit(ectx, v, traversal.AtAddress(v.Address+ectx.LoadBias), consume)
	}
	return nil
}

// WalkFrame walks the parameters, locals and return value of the function
// in ectx.Frame. Variables without a computable location are skipped.
func (s *Session) WalkFrame(ectx *traversal.ExecutionContext, consume traversal.Consumer) error {
	engine, _, err := s.running()
	if err != nil {
		return err
	}
	if ectx.Frame == nil {
		return fmt.Errorf("thread %d: %w", ectx.ThreadID, ErrNoFrame)
	}

	vars := make([]*symtab.Variable, 0, len(ectx.Frame.Params)+len(ectx.Frame.Locals)+1)
	vars = append(vars, ectx.Frame.Params...)
	vars = append(vars, ectx.Frame.Locals...)
	if ectx.Frame.Return != nil {
		if _, ok := ectx.Registers[ReturnRegister]; ok {
			vars = append(vars, ectx.Frame.Return)
		}
	}

	for _, v := range vars {
		loc, ok := Locate(ectx, v)
		if !ok {
			s.logger.Debug().
				Str("function", ectx.Frame.Name).
				Str("variable", v.Name).
				Msg("Variable has no location in this frame")
			continue
		}
		engine.Visit(ectx, v, loc, consume)
	}
	return nil
}

// WalkThread walks the innermost frame of a thread.
func (s *Session) WalkThread(threadID int, consume traversal.Consumer) error {
	ectx, err := s.ThreadContext(threadID)
	if err != nil {
		return err
	}
	return s.WalkFrame(ectx, consume)
}

// Finish ends the session. When learning, the generated policy is written.
func (s *Session) Finish() error {
	s.mu.Lock()
	if s.state == StateFinished {
		s.mu.Unlock()
		return ErrFinished
	}
	wasBuilt := s.state != StateNew
	s.state = StateFinished
	s.mu.Unlock()

	if !wasBuilt || s.opts.GeneratePolicyFile == "" {
		return nil
	}
	return s.writePolicy(s.opts.GeneratePolicyFile)
}

// WritePolicy writes the policy learned so far to path. Writing to the
// policy file that was loaded is refused.
func (s *Session) WritePolicy(path string) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateNew {
		return ErrNotBuilt
	}
	return s.writePolicy(path)
}

func (s *Session) writePolicy(path string) error {
	if s.opts.PolicyFile != "" && samePath(s.opts.PolicyFile, path) {
		return fmt.Errorf("%s: %w", path, ErrPolicyConflict)
	}
	if err := disambig.NewGenerator(s.prog, s.obs).Write(path); err != nil {
		return fmt.Errorf("failed to write policy: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("Wrote generated policy")
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
