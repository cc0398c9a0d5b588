/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: runtime.go
Description: The abstraction layer contract and the per-session runtime handed to states
and transitions while they execute.
*/

package automaton

import (
	"context"
	"io"
	"math/rand"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/sirupsen/logrus"
)

// AbstractionLayer is the only path between the automaton and the raw channel
type AbstractionLayer interface {
	// ReceiveSymbol blocks until a message arrives. A nil symbol with a nil
	// error means the bytes matched nothing in the grammar.
	ReceiveSymbol(ctx context.Context) (*grammar.Symbol, []byte, error)
	// SendSymbol encodes sym and writes it to the channel
	SendSymbol(ctx context.Context, sym *grammar.Symbol) error
	// OpenChannel establishes the channel
	OpenChannel(ctx context.Context) error
	// CloseChannel tears the channel down
	CloseChannel(ctx context.Context) error
}

// Runtime carries what a state needs to execute within one session
type Runtime struct {
	SessionID string
	Layer     AbstractionLayer
	Rand      *rand.Rand
	Reporter  Reporter
	Logger    *logrus.Logger
}

func (rt *Runtime) log() *logrus.Entry {
	logger := rt.Logger
	if logger == nil {
		logger = nopLogger
	}
	return logger.WithField("session", rt.SessionID)
}

func (rt *Runtime) intn(n int) int {
	if rt.Rand == nil {
		return rand.Intn(n)
	}
	return rt.Rand.Intn(n)
}

func (rt *Runtime) activated(s *State, role Role) {
	if rt.Reporter != nil {
		rt.Reporter.OnStateActivated(StateEvent{SessionID: rt.SessionID, Role: role, State: s, Time: time.Now()})
	}
}

func (rt *Runtime) deactivated(s *State, role Role) {
	if rt.Reporter != nil {
		rt.Reporter.OnStateDeactivated(StateEvent{SessionID: rt.SessionID, Role: role, State: s, Time: time.Now()})
	}
}

func (rt *Runtime) executed(t *Transition, role Role, received *grammar.Symbol) {
	if rt.Reporter != nil {
		rt.Reporter.OnTransitionExecuted(TransitionEvent{
			SessionID:  rt.SessionID,
			Role:       role,
			Transition: t,
			Received:   received,
			Time:       time.Now(),
		})
	}
}

func (rt *Runtime) rejected(s *State, role Role, sym *grammar.Symbol, raw []byte) {
	if rt.Reporter != nil {
		rt.Reporter.OnSymbolRejected(MismatchEvent{
			SessionID: rt.SessionID,
			Role:      role,
			State:     s,
			Symbol:    sym,
			Raw:       raw,
			Time:      time.Now(),
		})
	}
}

var nopLogger = discardLogger()

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
