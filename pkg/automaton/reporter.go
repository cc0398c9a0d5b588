/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter interface and implementations for automaton telemetry. Reporters
are told when a state is activated and deactivated, when a transition executes, when
inbound data is rejected and when a session stops. They are informational only: the
walk never depends on them.
*/

package automaton

import (
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/grammar"
)

// StateEvent describes the activation or deactivation of a state
type StateEvent struct {
	SessionID string
	Role      Role
	State     *State
	Time      time.Time
}

// TransitionEvent describes a completed transition
type TransitionEvent struct {
	SessionID  string
	Role       Role
	Transition *Transition
	Received   *grammar.Symbol // Inbound symbol that selected the transition, if any
	Time       time.Time
}

// MismatchEvent describes inbound data that did not advance the automaton
type MismatchEvent struct {
	SessionID string
	Role      Role
	State     *State
	Symbol    *grammar.Symbol // Nil when the payload matched no symbol
	Raw       []byte
	Time      time.Time
}

// Reporter defines the interface for telemetry and visualization hooks
type Reporter interface {
	// OnStateActivated is called when a state starts executing
	OnStateActivated(ev StateEvent)
	// OnStateDeactivated is called when a state finishes executing, even on error
	OnStateDeactivated(ev StateEvent)
	// OnTransitionExecuted is called after a transition completed
	OnTransitionExecuted(ev TransitionEvent)
	// OnSymbolRejected is called for each protocol mismatch
	OnSymbolRejected(ev MismatchEvent)
	// OnSessionFinished is called once when Run returns
	OnSessionFinished(res *Result)
}

// NopReporter ignores every event. Embed it to implement part of Reporter.
type NopReporter struct{}

func (NopReporter) OnStateActivated(StateEvent)          {}
func (NopReporter) OnStateDeactivated(StateEvent)        {}
func (NopReporter) OnTransitionExecuted(TransitionEvent) {}
func (NopReporter) OnSymbolRejected(MismatchEvent)       {}
func (NopReporter) OnSessionFinished(*Result)            {}

// Reporters fans events out to several reporters in order
type Reporters []Reporter

func (rs Reporters) OnStateActivated(ev StateEvent) {
	for _, r := range rs {
		r.OnStateActivated(ev)
	}
}

func (rs Reporters) OnStateDeactivated(ev StateEvent) {
	for _, r := range rs {
		r.OnStateDeactivated(ev)
	}
}

func (rs Reporters) OnTransitionExecuted(ev TransitionEvent) {
	for _, r := range rs {
		r.OnTransitionExecuted(ev)
	}
}

func (rs Reporters) OnSymbolRejected(ev MismatchEvent) {
	for _, r := range rs {
		r.OnSymbolRejected(ev)
	}
}

func (rs Reporters) OnSessionFinished(res *Result) {
	for _, r := range rs {
		r.OnSessionFinished(res)
	}
}
