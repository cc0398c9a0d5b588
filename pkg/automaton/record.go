/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: record.go
Description: Flat records for persistence and interchange. A record carries the identity,
name and class tag of a state or transition, plus the endpoints and symbol references of
transitions. Symbols are referenced by identifier and resolved through a grammar.
*/

package automaton

import (
	"fmt"

	"github.com/kleascm/akaylee-automaton/pkg/grammar"
)

// Class tags
const (
	ClassNormalState            = "NormalState"
	ClassDataTransition         = "DataTransition"
	ClassOpenChannelTransition  = "OpenChannelTransition"
	ClassCloseChannelTransition = "CloseChannelTransition"
)

// Record is the serialized form of a state or a transition
type Record struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Class  string `json:"class" yaml:"class"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Input  string `json:"input,omitempty" yaml:"input,omitempty"`
	Output string `json:"output,omitempty" yaml:"output,omitempty"`
}

// ToRecord serializes the state identity
func (s *State) ToRecord() Record {
	return Record{ID: s.ID, Name: s.Name, Class: ClassNormalState}
}

// StateFromRecord rebuilds a state without transitions
func StateFromRecord(r Record) (*State, error) {
	if r.Class != ClassNormalState {
		return nil, fmt.Errorf("record %s: class %q is not a state", r.ID, r.Class)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("state record without identifier")
	}
	return NewState(r.ID, r.Name), nil
}

// ToRecord serializes the transition
func (t *Transition) ToRecord() Record {
	r := Record{
		ID:     t.ID,
		Name:   t.Name,
		Class:  classOf(t.Kind),
		Source: t.Source,
		Target: t.Target,
	}
	if t.Input != nil {
		r.Input = t.Input.ID
	}
	if t.Output != nil {
		r.Output = t.Output.ID
	}
	return r
}

func classOf(k TransitionKind) string {
	switch k {
	case KindData:
		return ClassDataTransition
	case KindOpenChannel:
		return ClassOpenChannelTransition
	case KindCloseChannel:
		return ClassCloseChannelTransition
	default:
		return k.String()
	}
}

// TransitionFromRecord rebuilds a transition, resolving its symbols through g
func TransitionFromRecord(r Record, g *grammar.Grammar) (*Transition, error) {
	switch r.Class {
	case ClassOpenChannelTransition:
		return NewOpenChannelTransition(r.ID, r.Name, r.Source, r.Target), nil
	case ClassCloseChannelTransition:
		return NewCloseChannelTransition(r.ID, r.Name, r.Source, r.Target), nil
	case ClassDataTransition:
		input, err := lookup(g, r.ID, r.Input)
		if err != nil {
			return nil, err
		}
		output, err := lookup(g, r.ID, r.Output)
		if err != nil {
			return nil, err
		}
		return NewDataTransition(r.ID, r.Name, r.Source, r.Target, input, output), nil
	default:
		return nil, fmt.Errorf("record %s: %w: class %q", r.ID, ErrUnknownKind, r.Class)
	}
}

func lookup(g *grammar.Grammar, owner, id string) (*grammar.Symbol, error) {
	if id == "" {
		return nil, nil
	}
	if g == nil {
		return nil, fmt.Errorf("transition %s: symbol %s needs a grammar", owner, id)
	}
	sym, ok := g.Symbol(id)
	if !ok {
		return nil, fmt.Errorf("transition %s: unknown symbol %s", owner, id)
	}
	return sym, nil
}

// Snapshot is the serialized form of a whole automaton
type Snapshot struct {
	Name        string   `json:"name" yaml:"name"`
	Initial     string   `json:"initial" yaml:"initial"`
	States      []Record `json:"states" yaml:"states"`
	Transitions []Record `json:"transitions" yaml:"transitions"`
}

// Snapshot serializes the automaton in insertion order
func (a *Automaton) Snapshot() Snapshot {
	snap := Snapshot{Name: a.name, Initial: a.initial}
	for _, s := range a.States() {
		snap.States = append(snap.States, s.ToRecord())
	}
	for _, t := range a.Transitions() {
		snap.Transitions = append(snap.Transitions, t.ToRecord())
	}
	return snap
}

// FromSnapshot rebuilds an automaton, resolving symbols through g
func FromSnapshot(snap Snapshot, g *grammar.Grammar) (*Automaton, error) {
	a := New(snap.Name)
	for _, r := range snap.States {
		s, err := StateFromRecord(r)
		if err != nil {
			return nil, err
		}
		if err := a.AddState(s); err != nil {
			return nil, err
		}
	}
	if snap.Initial != "" {
		if err := a.SetInitial(snap.Initial); err != nil {
			return nil, err
		}
	}
	for _, r := range snap.Transitions {
		t, err := TransitionFromRecord(r, g)
		if err != nil {
			return nil, err
		}
		if err := a.Connect(t); err != nil {
			return nil, err
		}
	}
	return a, nil
}
