/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: session_test.go
Description: Session level scenarios: a full greeting walk, a self-looping walk stopped
by cancellation, step limits, channel failures and automaton validation.
*/

package automaton_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelloScenario opens the channel, receives HELLO and stops on the terminal state
func TestHelloScenario(t *testing.T) {
	layer := &fakeLayer{script: []received{{sym: helloSym, raw: []byte("HELLO")}}}
	rec := &recorder{}

	sess, err := automaton.NewSession(helloModel(t), automaton.RoleClient, layer,
		automaton.WithSeed(1), automaton.WithReporters(rec))
	require.NoError(t, err)

	res, err := sess.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "S2", res.FinalState)
	assert.Equal(t, "S0", res.InitialState)
	assert.Equal(t, automaton.StopModelExhausted, res.Reason)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, []string{"T0", "T1"}, rec.transitions)
	assert.Equal(t, 2, rec.count("enter:"))
	assert.Equal(t, 2, rec.count("leave:"))
	assert.Equal(t, []string{
		"enter:S0", "exec:T0", "leave:S0",
		"enter:S1", "exec:T1", "leave:S1",
	}, rec.events)
	assert.Equal(t, 1, layer.opens)
	assert.Same(t, res, rec.result)
	assert.Equal(t, "S2", sess.Current().ID)
}

// TestGoodbyeScenarioCancelled self-loops on an unknown greeting until cancelled
func TestGoodbyeScenarioCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loops := 0
	layer := &fakeLayer{fallback: func(ctx context.Context) (*grammar.Symbol, []byte, error) {
		loops++
		if loops == 5 {
			cancel()
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		return goodbyeSym, []byte("GOODBYE"), nil
	}}
	rec := &recorder{}

	sess, err := automaton.NewSession(helloModel(t), automaton.RoleClient, layer,
		automaton.WithSeed(1), automaton.WithReporters(rec))
	require.NoError(t, err)

	res, err := sess.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, automaton.ErrCancelled)
	assert.False(t, automaton.IsChannelFailure(err))
	assert.Equal(t, automaton.StopCancelled, res.Reason)
	assert.Equal(t, "S1", res.FinalState)
	assert.Equal(t, 4, rec.mismatches)
	assert.Equal(t, []string{"T0"}, rec.transitions)
}

// TestReceiveDeadline checks a silent peer is reported as cancellation, not mismatch
func TestReceiveDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sess, err := automaton.NewSession(helloModel(t), automaton.RoleClient, &fakeLayer{}, automaton.WithSeed(1))
	require.NoError(t, err)

	res, err := sess.Run(ctx)
	assert.ErrorIs(t, err, automaton.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, automaton.StopCancelled, res.Reason)
	assert.Equal(t, "S1", res.FinalState)
}

// TestChannelFailureStopsSession checks transport errors end the walk distinctly
func TestChannelFailureStopsSession(t *testing.T) {
	layer := &fakeLayer{openErr: errors.New("connection refused")}
	sess, err := automaton.NewSession(helloModel(t), automaton.RoleClient, layer, automaton.WithSeed(1))
	require.NoError(t, err)

	res, err := sess.Run(context.Background())
	require.Error(t, err)
	assert.True(t, automaton.IsChannelFailure(err))
	assert.Equal(t, automaton.StopChannelFailure, res.Reason)
	// The cursor stays on the state whose transition failed
	assert.Equal(t, "S0", res.FinalState)
	assert.Zero(t, res.Steps)
}

// TestStepLimit bounds an endless master walk
func TestStepLimit(t *testing.T) {
	a := automaton.New("loop")
	require.NoError(t, a.AddState(automaton.NewState("L", "Loop")))
	require.NoError(t, a.Connect(automaton.NewDataTransition("ping", "ping", "L", "L", helloSym, nil)))

	layer := &fakeLayer{}
	sess, err := automaton.NewSession(a, automaton.RoleMaster, layer,
		automaton.WithSeed(3), automaton.WithMaxSteps(10), automaton.WithID("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", sess.ID())
	assert.Equal(t, int64(3), sess.Seed())

	res, err := sess.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, automaton.StopStepLimit, res.Reason)
	assert.Equal(t, 10, res.Steps)
	assert.Len(t, layer.sent, 10)
}

// TestStep drives the walk one state at a time
func TestStep(t *testing.T) {
	layer := &fakeLayer{script: []received{{sym: helloSym, raw: []byte("HELLO")}}}
	sess, err := automaton.NewSession(helloModel(t), automaton.RoleClient, layer, automaton.WithSeed(1))
	require.NoError(t, err)
	ctx := context.Background()

	done, err := sess.Step(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "S1", sess.Current().ID)

	done, err = sess.Step(ctx)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "S2", sess.Current().ID)

	done, err = sess.Step(ctx)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 2, sess.Steps())
}

func TestNewSessionValidation(t *testing.T) {
	_, err := automaton.NewSession(automaton.New("empty"), automaton.RoleClient, &fakeLayer{})
	assert.ErrorIs(t, err, automaton.ErrNoInitialState)

	_, err = automaton.NewSession(helloModel(t), automaton.Role(7), &fakeLayer{})
	assert.ErrorIs(t, err, automaton.ErrUnknownRole)

	_, err = automaton.NewSession(helloModel(t), automaton.RoleClient, nil)
	assert.Error(t, err)

	// A zero seed is replaced by a time based one
	sess, err := automaton.NewSession(helloModel(t), automaton.RoleMaster, &fakeLayer{})
	require.NoError(t, err)
	assert.NotZero(t, sess.Seed())
	assert.NotEmpty(t, sess.ID())
}

func TestAutomatonTable(t *testing.T) {
	a := helloModel(t)

	assert.ErrorIs(t, a.AddState(automaton.NewState("S1", "dup")), automaton.ErrDuplicateState)
	assert.ErrorIs(t, a.SetInitial("nope"), automaton.ErrUnknownState)
	assert.ErrorIs(t, a.Connect(automaton.NewOpenChannelTransition("x", "x", "S0", "nope")), automaton.ErrUnknownState)

	ids := make([]string, 0, 3)
	for _, s := range a.States() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"S0", "S1", "S2"}, ids)
	assert.Len(t, a.Transitions(), 2)
	require.NoError(t, a.Validate())

	require.NoError(t, a.SetInitial("S1"))
	initial, err := a.Initial()
	require.NoError(t, err)
	assert.Equal(t, "S1", initial.ID)
}
