/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: record_test.go
Description: Tests for records, snapshots and graph exports.
*/

package automaton_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRecordIdempotent(t *testing.T) {
	s := automaton.NewState("S1", "Connected")
	require.NoError(t, s.RegisterTransition(automaton.NewCloseChannelTransition("c", "c", "S1", "S1")))

	first, err := json.Marshal(s.ToRecord())
	require.NoError(t, err)
	second, err := json.Marshal(s.ToRecord())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStateRecordRoundTrip(t *testing.T) {
	r := automaton.NewState("S7", "Authenticated").ToRecord()
	assert.Equal(t, automaton.ClassNormalState, r.Class)

	s, err := automaton.StateFromRecord(r)
	require.NoError(t, err)
	assert.Equal(t, "S7", s.ID)
	assert.Equal(t, "Authenticated", s.Name)
	assert.Equal(t, r, s.ToRecord())

	_, err = automaton.StateFromRecord(automaton.Record{ID: "x", Class: automaton.ClassDataTransition})
	assert.Error(t, err)
}

func TestTransitionRecordRoundTrip(t *testing.T) {
	g, err := grammar.New("g", helloSym, ackSym)
	require.NoError(t, err)

	for _, tr := range []*automaton.Transition{
		automaton.NewDataTransition("d", "greet", "S0", "S1", helloSym, ackSym),
		automaton.NewOpenChannelTransition("o", "open", "S0", "S1"),
		automaton.NewCloseChannelTransition("c", "close", "S1", "S0"),
	} {
		r := tr.ToRecord()
		back, err := automaton.TransitionFromRecord(r, g)
		require.NoError(t, err)
		assert.Equal(t, tr.Kind, back.Kind)
		assert.Equal(t, r, back.ToRecord())
	}

	_, err = automaton.TransitionFromRecord(automaton.Record{ID: "d", Class: automaton.ClassDataTransition, Input: "missing"}, g)
	assert.Error(t, err)
	_, err = automaton.TransitionFromRecord(automaton.Record{ID: "d", Class: "Teleport"}, g)
	assert.ErrorIs(t, err, automaton.ErrUnknownKind)
}

func TestSnapshotRoundTrip(t *testing.T) {
	g, err := grammar.New("g", helloSym)
	require.NoError(t, err)
	a := helloModel(t)

	snap := a.Snapshot()
	assert.Equal(t, "S0", snap.Initial)
	assert.Len(t, snap.States, 3)
	assert.Len(t, snap.Transitions, 2)

	back, err := automaton.FromSnapshot(snap, g)
	require.NoError(t, err)
	assert.Equal(t, snap, back.Snapshot())
}

func TestWriteDot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, automaton.WriteDot(&buf, helloModel(t), "S1"))

	out := buf.String()
	assert.Contains(t, out, `digraph "hello" {`)
	assert.Contains(t, out, `"S0" -> "S1" [label="open", style="dashed"]`)
	assert.Contains(t, out, `"S1" -> "S2" [label="HELLO"]`)
	assert.Contains(t, out, `"S1" [label="Connected", style="rounded,filled", fillcolor="#f98b8b"]`)
}

func TestWriteMermaid(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, automaton.WriteMermaid(&buf, helloModel(t)))

	out := buf.String()
	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, `S0(("Start"))`)
	assert.Contains(t, out, `S2(["Greeted"])`)
	assert.Contains(t, out, `S0 -. "open" .-> S1`)
	assert.Contains(t, out, `S1 -- "HELLO" --> S2`)
}
