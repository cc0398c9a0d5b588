/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: automaton.go
Description: The automaton owns the state table. States are stored by identifier in
insertion order and transitions refer to their targets by identifier, so cyclic graphs
need no back references.
*/

package automaton

import (
	"errors"
	"fmt"
)

// Automaton is the state table of a behavioral model
type Automaton struct {
	name    string
	states  map[string]*State
	order   []string
	initial string
}

// New creates an empty automaton
func New(name string) *Automaton {
	return &Automaton{
		name:   name,
		states: make(map[string]*State),
	}
}

// Name returns the automaton name
func (a *Automaton) Name() string {
	return a.name
}

// AddState adds s to the table. The first state added becomes the initial state.
func (a *Automaton) AddState(s *State) error {
	if s == nil || s.ID == "" {
		return errors.New("state must have an identifier")
	}
	if _, exists := a.states[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateState, s.ID)
	}
	a.states[s.ID] = s
	a.order = append(a.order, s.ID)
	if a.initial == "" {
		a.initial = s.ID
	}
	return nil
}

// SetInitial selects the state the sessions start from
func (a *Automaton) SetInitial(id string) error {
	if _, ok := a.states[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownState, id)
	}
	a.initial = id
	return nil
}

// Initial returns the initial state
func (a *Automaton) Initial() (*State, error) {
	if a.initial == "" {
		return nil, ErrNoInitialState
	}
	return a.states[a.initial], nil
}

// State looks a state up by identifier
func (a *Automaton) State(id string) (*State, bool) {
	s, ok := a.states[id]
	return s, ok
}

// States returns all states in insertion order
func (a *Automaton) States() []*State {
	out := make([]*State, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.states[id])
	}
	return out
}

// Transitions returns every transition, grouped by source state in insertion order
func (a *Automaton) Transitions() []*Transition {
	var out []*Transition
	for _, id := range a.order {
		out = append(out, a.states[id].transitions...)
	}
	return out
}

// Connect registers t on its source state after checking both ends exist
func (a *Automaton) Connect(t *Transition) error {
	src, ok := a.states[t.Source]
	if !ok {
		return fmt.Errorf("transition %s: %w: source %s", t.ID, ErrUnknownState, t.Source)
	}
	if _, ok := a.states[t.Target]; !ok {
		return fmt.Errorf("transition %s: %w: target %s", t.ID, ErrUnknownState, t.Target)
	}
	return src.RegisterTransition(t)
}

// Validate checks that the automaton can be walked: an initial state exists and
// every transition is owned by its source and lands on a known state.
func (a *Automaton) Validate() error {
	if _, err := a.Initial(); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for _, id := range a.order {
		for _, t := range a.states[id].transitions {
			if t.Source != id {
				return fmt.Errorf("%w: %s", ErrForeignTransition, t.ID)
			}
			if _, ok := a.states[t.Target]; !ok {
				return fmt.Errorf("transition %s: %w: target %s", t.ID, ErrUnknownState, t.Target)
			}
			if t.Kind == KindData && t.Input == nil {
				return fmt.Errorf("transition %s: data transition needs an input symbol", t.ID)
			}
			if _, dup := seen[t.ID]; dup {
				return fmt.Errorf("duplicate transition %s", t.ID)
			}
			seen[t.ID] = struct{}{}
		}
	}
	return nil
}
