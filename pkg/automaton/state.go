/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: state.go
Description: States are the nodes of the automaton. A state owns its outgoing transitions
in registration order and knows how to pick one under each role: the client role reacts
to what the peer sends, the master role draws a transition at random.
*/

package automaton

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// State is one node of the automaton
type State struct {
	ID   string
	Name string

	transitions []*Transition
}

// NewState creates a state without transitions
func NewState(id, name string) *State {
	return &State{ID: id, Name: name}
}

// RegisterTransition appends t to the outgoing transitions.
// Registration order is the client role's priority order.
func (s *State) RegisterTransition(t *Transition) error {
	if t == nil {
		return errors.New("nil transition")
	}
	if t.Source != s.ID {
		return fmt.Errorf("%w: %s has source %q, state is %q", ErrForeignTransition, t.ID, t.Source, s.ID)
	}
	s.transitions = append(s.transitions, t)
	return nil
}

// Transitions returns the outgoing transitions in registration order
func (s *State) Transitions() []*Transition {
	return append([]*Transition(nil), s.transitions...)
}

// IsTerminal reports whether the state has no outgoing transition
func (s *State) IsTerminal() bool {
	return len(s.transitions) == 0
}

// Execute runs the state once under role and returns the next state ID.
// An empty ID means the session ends here.
func (s *State) Execute(ctx context.Context, role Role, rt *Runtime) (string, error) {
	rt.activated(s, role)
	defer rt.deactivated(s, role)

	if s.IsTerminal() {
		return "", nil
	}

	switch role {
	case RoleClient:
		return s.executeAsClient(ctx, rt)
	case RoleMaster:
		return s.executeAsMaster(ctx, rt)
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
	}
}

func (s *State) executeAsClient(ctx context.Context, rt *Runtime) (string, error) {
	log := rt.log().WithField("state", s.ID)

	// Channel lifecycle transitions pre-empt data exchange
	for _, t := range s.transitions {
		if t.Kind.IsLifecycle() {
			return t.execute(ctx, RoleClient, rt, s, nil)
		}
	}

	sym, raw, err := rt.Layer.ReceiveSymbol(ctx)
	if err != nil {
		if errors.Is(err, ErrReceiveTimeout) {
			log.Debug("Nothing received, staying in state")
			return s.ID, nil
		}
		return "", channelFailure("receive", err)
	}
	if sym == nil {
		rt.rejected(s, RoleClient, nil, raw)
		return s.ID, nil
	}

	log.WithField("symbol", sym.ID).Debug("Symbol received")
	for _, t := range s.transitions {
		if t.IsValid(sym) {
			log.WithFields(logrus.Fields{
				"symbol":     sym.ID,
				"transition": t.ID,
			}).Debug("Received data is valid for transition")
			return t.execute(ctx, RoleClient, rt, s, sym)
		}
	}

	rt.rejected(s, RoleClient, sym, raw)
	return s.ID, nil
}

func (s *State) executeAsMaster(ctx context.Context, rt *Runtime) (string, error) {
	picked := s.transitions[rt.intn(len(s.transitions))]
	rt.log().WithFields(logrus.Fields{
		"state":      s.ID,
		"transition": picked.ID,
	}).Debugf("Randomly picked the transition %s", picked.Name)
	return picked.execute(ctx, RoleMaster, rt, s, nil)
}

func (s *State) String() string {
	return fmt.Sprintf("State(%s %q, %d transitions)", s.ID, s.Name, len(s.transitions))
}
