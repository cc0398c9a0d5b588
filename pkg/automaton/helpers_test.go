/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: helpers_test.go
Description: Test doubles for the automaton package: a scripted abstraction layer and a
reporter that records every event in order.
*/

package automaton_test

import (
	"context"
	"sync"
	"testing"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
)

var (
	helloSym   = grammar.MustSymbol("hello", "HELLO", grammar.Static("verb", []byte("HELLO")))
	goodbyeSym = grammar.MustSymbol("goodbye", "GOODBYE", grammar.Static("verb", []byte("GOODBYE")))
	ackSym     = grammar.MustSymbol("ack", "ACK", grammar.Static("verb", []byte("ACK")))
)

type received struct {
	sym *grammar.Symbol
	raw []byte
	err error
}

// fakeLayer replays scripted receives and records every other call
type fakeLayer struct {
	mu       sync.Mutex
	script   []received
	fallback func(ctx context.Context) (*grammar.Symbol, []byte, error)
	openErr  error
	closeErr error
	sendErr  error

	receives int
	sent     []*grammar.Symbol
	opens    int
	closes   int
}

func (l *fakeLayer) ReceiveSymbol(ctx context.Context) (*grammar.Symbol, []byte, error) {
	l.mu.Lock()
	l.receives++
	if len(l.script) > 0 {
		next := l.script[0]
		l.script = l.script[1:]
		l.mu.Unlock()
		return next.sym, next.raw, next.err
	}
	fallback := l.fallback
	l.mu.Unlock()

	if fallback != nil {
		return fallback(ctx)
	}
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func (l *fakeLayer) SendSymbol(_ context.Context, sym *grammar.Symbol) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, sym)
	return nil
}

func (l *fakeLayer) OpenChannel(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opens++
	return l.openErr
}

func (l *fakeLayer) CloseChannel(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return l.closeErr
}

func (l *fakeLayer) io() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.receives + len(l.sent) + l.opens + l.closes
}

// recorder keeps every reporter event as a compact string
type recorder struct {
	mu          sync.Mutex
	events      []string
	transitions []string
	mismatches  int
	result      *automaton.Result
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) OnStateActivated(ev automaton.StateEvent) { r.add("enter:" + ev.State.ID) }

func (r *recorder) OnStateDeactivated(ev automaton.StateEvent) { r.add("leave:" + ev.State.ID) }

func (r *recorder) OnTransitionExecuted(ev automaton.TransitionEvent) {
	r.add("exec:" + ev.Transition.ID)
	r.mu.Lock()
	r.transitions = append(r.transitions, ev.Transition.ID)
	r.mu.Unlock()
}

func (r *recorder) OnSymbolRejected(automaton.MismatchEvent) {
	r.mu.Lock()
	r.mismatches++
	r.mu.Unlock()
}

func (r *recorder) OnSessionFinished(res *automaton.Result) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
}

func (r *recorder) count(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if len(ev) >= len(prefix) && ev[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// helloModel builds S0 -open-> S1 -HELLO-> S2
func helloModel(t *testing.T) *automaton.Automaton {
	t.Helper()
	a := automaton.New("hello")
	for _, s := range []*automaton.State{
		automaton.NewState("S0", "Start"),
		automaton.NewState("S1", "Connected"),
		automaton.NewState("S2", "Greeted"),
	} {
		if err := a.AddState(s); err != nil {
			t.Fatalf("add state: %v", err)
		}
	}
	for _, tr := range []*automaton.Transition{
		automaton.NewOpenChannelTransition("T0", "open", "S0", "S1"),
		automaton.NewDataTransition("T1", "hello", "S1", "S2", helloSym, nil),
	} {
		if err := a.Connect(tr); err != nil {
			t.Fatalf("connect: %v", err)
		}
	}
	return a
}
