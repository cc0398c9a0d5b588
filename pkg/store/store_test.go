/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: store_test.go
Description: Tests for the bolt store: model records, session summaries, stride ordering
and the recording reporter.
*/

package store_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/kleascm/akaylee-automaton/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "automaton.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func helloAutomaton(t *testing.T) (*automaton.Automaton, *grammar.Grammar) {
	t.Helper()
	hello := grammar.MustSymbol("hello", "HELLO", grammar.Static("verb", []byte("HELLO")))
	g, err := grammar.New("greeting", hello)
	require.NoError(t, err)

	a := automaton.New("greeting")
	for _, id := range []string{"S0", "S1", "S2"} {
		require.NoError(t, a.AddState(automaton.NewState(id, id)))
	}
	require.NoError(t, a.Connect(automaton.NewOpenChannelTransition("T0", "open", "S0", "S1")))
	require.NoError(t, a.Connect(automaton.NewDataTransition("T1", "hello", "S1", "S2", hello, nil)))
	return a, g
}

func TestModelRoundTrip(t *testing.T) {
	s := openStore(t)
	a, g := helloAutomaton(t)

	require.NoError(t, s.SaveModel(a.Snapshot()))
	snap, err := s.Model("greeting")
	require.NoError(t, err)
	assert.Equal(t, a.Snapshot(), snap)

	rebuilt, err := automaton.FromSnapshot(snap, g)
	require.NoError(t, err)
	assert.Len(t, rebuilt.Transitions(), 2)

	names, err := s.Models()
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, names)

	_, err = s.Model("missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStridesKeepOrder(t *testing.T) {
	s := openStore(t)
	for i := 0; i < 300; i++ {
		seq, err := s.AppendStride("sess", store.Stride{Transition: "T", Source: "S0", Target: "S0"})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}

	strides, err := s.Strides("sess")
	require.NoError(t, err)
	require.Len(t, strides, 300)
	for i, st := range strides {
		assert.Equal(t, uint64(i+1), st.Seq)
	}

	none, err := s.Strides("other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessionsNewestFirst(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	require.NoError(t, s.SaveSession(store.SessionSummary{ID: "old", Started: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveSession(store.SessionSummary{ID: "new", Started: now}))

	sums, err := s.Sessions()
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "new", sums[0].ID)

	require.NoError(t, s.DeleteSession("old"))
	_, err = s.Session("old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.DeleteSession("never"))
}

func TestStoreReporter(t *testing.T) {
	s := openStore(t)
	a, g := helloAutomaton(t)
	r := store.NewReporter(s, "greeting", nil)
	hello, _ := g.Symbol("hello")

	ts := a.Transitions()
	r.OnTransitionExecuted(automaton.TransitionEvent{SessionID: "abc", Role: automaton.RoleClient, Transition: ts[0], Time: time.Now()})
	r.OnTransitionExecuted(automaton.TransitionEvent{SessionID: "abc", Role: automaton.RoleClient, Transition: ts[1], Received: hello, Time: time.Now()})

	started := time.Now().Add(-time.Second)
	r.OnSessionFinished(&automaton.Result{
		SessionID:    "abc",
		Role:         automaton.RoleClient,
		Seed:         42,
		InitialState: "S0",
		FinalState:   "S2",
		Steps:        2,
		Reason:       automaton.StopModelExhausted,
		Started:      started,
		Finished:     time.Now(),
	})

	strides, err := s.Strides("abc")
	require.NoError(t, err)
	require.Len(t, strides, 2)
	assert.Equal(t, "T0", strides[0].Transition)
	assert.Equal(t, "OpenChannel", strides[0].Kind)
	assert.Equal(t, "hello", strides[1].Received)

	sum, err := s.Session("abc")
	require.NoError(t, err)
	assert.Equal(t, "greeting", sum.Model)
	assert.Equal(t, automaton.RoleClient, sum.Role)
	assert.Equal(t, "model_exhausted", sum.Reason)
	assert.Equal(t, "S2", sum.FinalState)
	assert.Equal(t, int64(42), sum.Seed)
	assert.Empty(t, sum.Error)
}
