/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session.go
Description: Session drives one walk of an automaton under a fixed role. It owns the
current-state cursor, asks the current state to execute, and moves the cursor only once
the state returned a next state without error. The walk is sequential; sessions are
independent of each other and may run concurrently.
*/

package automaton

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StopReason tells why a session stopped
type StopReason int

const (
	StopModelExhausted StopReason = iota // Reached a terminal state
	StopStepLimit                        // MaxSteps executions done
	StopCancelled                        // Context cancelled or deadline exceeded
	StopChannelFailure                   // Transport broke down
	StopError                            // Any other failure
)

func (r StopReason) String() string {
	switch r {
	case StopModelExhausted:
		return "model_exhausted"
	case StopStepLimit:
		return "step_limit"
	case StopCancelled:
		return "cancelled"
	case StopChannelFailure:
		return "channel_failure"
	case StopError:
		return "error"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Result summarizes a finished session
type Result struct {
	SessionID    string
	Role         Role
	Seed         int64
	InitialState string
	FinalState   string
	Steps        int
	Reason       StopReason
	Started      time.Time
	Finished     time.Time
	Err          error
}

// Duration returns how long the session ran
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Option configures a Session
type Option func(*Session)

// WithSeed fixes the seed of the master role's random choices
func WithSeed(seed int64) Option {
	return func(s *Session) {
		s.seed = seed
	}
}

// WithRand supplies the random source directly
func WithRand(r *rand.Rand) Option {
	return func(s *Session) {
		s.rng = r
	}
}

// WithReporters attaches telemetry reporters
func WithReporters(reporters ...Reporter) Option {
	return func(s *Session) {
		s.reporters = append(s.reporters, reporters...)
	}
}

// WithLogger sets the session logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithMaxSteps bounds the number of state executions; zero means unbounded
func WithMaxSteps(n int) Option {
	return func(s *Session) {
		s.maxSteps = n
	}
}

// WithID overrides the generated session identifier
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// Session is one walk of an automaton
type Session struct {
	id        string
	automaton *Automaton
	role      Role
	layer     AbstractionLayer
	seed      int64
	rng       *rand.Rand
	reporters Reporters
	logger    *logrus.Logger
	maxSteps  int

	mu      sync.RWMutex
	current string
	steps   int
	done    bool

	rt *Runtime
}

// NewSession creates a session positioned on the automaton's initial state
func NewSession(a *Automaton, role Role, layer AbstractionLayer, opts ...Option) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
	}
	if layer == nil {
		return nil, errors.New("session needs an abstraction layer")
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid automaton %s: %w", a.Name(), err)
	}
	initial, _ := a.Initial()

	s := &Session{
		automaton: a,
		role:      role,
		layer:     layer,
		current:   initial.ID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.New().String()
	}
	if s.logger == nil {
		s.logger = nopLogger
	}
	if s.rng == nil {
		if s.seed == 0 {
			s.seed = time.Now().UnixNano()
			s.logger.WithFields(logrus.Fields{
				"session": s.id,
				"seed":    s.seed,
			}).Info("No seed configured, using a time based seed")
		}
		s.rng = rand.New(rand.NewSource(s.seed))
	}

	s.rt = &Runtime{
		SessionID: s.id,
		Layer:     layer,
		Rand:      s.rng,
		Reporter:  s.reporters,
		Logger:    s.logger,
	}
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Role returns the role the session plays
func (s *Session) Role() Role {
	return s.role
}

// Seed returns the seed of the random source, zero when supplied with WithRand
func (s *Session) Seed() int64 {
	return s.seed
}

// Current returns the current state
func (s *Session) Current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, _ := s.automaton.State(s.current)
	return st
}

// Steps returns how many state executions completed
func (s *Session) Steps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps
}

// Step executes the current state once. It reports true when the session
// reached a terminal state and nothing more can run.
func (s *Session) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	s.mu.RLock()
	id, done := s.current, s.done
	s.mu.RUnlock()
	if done {
		return true, nil
	}

	st, ok := s.automaton.State(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownState, id)
	}
	if st.IsTerminal() {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		return true, nil
	}

	next, err := st.Execute(ctx, s.role, s.rt)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps++
	if next == "" {
		s.done = true
		return true, nil
	}
	if _, ok := s.automaton.State(next); !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownState, next)
	}
	s.current = next
	return false, nil
}

// Run walks the automaton until a terminal state, the step limit, a fatal
// error or cancellation. Protocol mismatches never stop the walk.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		SessionID:    s.id,
		Role:         s.role,
		Seed:         s.seed,
		InitialState: s.Current().ID,
		Started:      time.Now(),
	}

	s.logger.WithFields(logrus.Fields{
		"session": s.id,
		"role":    s.role.String(),
		"initial": res.InitialState,
		"seed":    s.seed,
	}).Info("Session started")

	var err error
	for {
		if s.maxSteps > 0 && s.Steps() >= s.maxSteps {
			res.Reason = StopStepLimit
			break
		}
		var finished bool
		finished, err = s.Step(ctx)
		if err != nil {
			res.Reason = classify(err)
			break
		}
		if finished {
			res.Reason = StopModelExhausted
			break
		}
	}

	res.FinalState = s.Current().ID
	res.Steps = s.Steps()
	res.Finished = time.Now()
	res.Err = err
	s.reporters.OnSessionFinished(res)
	return res, err
}

func classify(err error) StopReason {
	switch {
	case errors.Is(err, ErrCancelled):
		return StopCancelled
	case IsChannelFailure(err):
		return StopChannelFailure
	default:
		return StopError
	}
}
