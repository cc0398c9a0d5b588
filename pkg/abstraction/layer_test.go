/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: layer_test.go
Description: Tests for the abstraction layer over an in-memory pipe: encoding, symbol
resolution, idle timeouts, fuzzing and the transcript.
*/

package abstraction_test

import (
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/abstraction"
	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/channel"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/kleascm/akaylee-automaton/pkg/strategies"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrammar(t *testing.T) *grammar.Grammar {
	t.Helper()
	g, err := grammar.New("greeting",
		grammar.MustSymbol("hello", "HELLO", grammar.Static("verb", []byte("HELLO "))),
		grammar.MustSymbol("data", "DATA",
			grammar.Static("magic", []byte{0xCA, 0xFE}),
			grammar.Size("len", 1, "body"),
			grammar.Variable("body", 1, 8),
		),
	)
	require.NoError(t, err)
	return g
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openPair(t *testing.T, opts abstraction.Options) (*abstraction.Layer, *channel.PipeEnd) {
	t.Helper()
	local, peer := channel.NewPipe("layer")
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	layer := abstraction.New(local, testGrammar(t), opts)
	require.NoError(t, layer.OpenChannel(context.Background()))
	require.NoError(t, peer.Open(context.Background()))
	return layer, peer
}

func TestSendEncodesSymbol(t *testing.T) {
	ctx := context.Background()
	layer, peer := openPair(t, abstraction.Options{Rand: rand.New(rand.NewSource(3))})
	g := testGrammar(t)

	data, _ := g.Symbol("data")
	require.NoError(t, layer.SendSymbol(ctx, data))

	raw, err := peer.Read(ctx)
	require.NoError(t, err)
	assert.True(t, data.Match(raw), "payload %x", raw)
	assert.Equal(t, data, g.Resolve(raw))

	entries := layer.Transcript().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, abstraction.Outbound, entries[0].Direction)
	assert.Equal(t, "data", entries[0].Symbol)
	assert.False(t, entries[0].Mutated)
}

func TestReceiveResolvesSymbol(t *testing.T) {
	ctx := context.Background()
	layer, peer := openPair(t, abstraction.Options{})

	require.NoError(t, peer.Write(ctx, []byte("HELLO ")))
	sym, raw, err := layer.ReceiveSymbol(ctx)
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "hello", sym.ID)
	assert.Equal(t, []byte("HELLO "), raw)

	// Unknown data is not an error
	require.NoError(t, peer.Write(ctx, []byte{0x01, 0x02}))
	sym, raw, err = layer.ReceiveSymbol(ctx)
	require.NoError(t, err)
	assert.Nil(t, sym)
	assert.Equal(t, []byte{0x01, 0x02}, raw)

	entries := layer.Transcript().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Symbol)
	assert.Empty(t, entries[1].Symbol)
	assert.Equal(t, uint64(2), entries[1].Seq)
}

func TestReceiveTimeoutAndCancellation(t *testing.T) {
	layer, _ := openPair(t, abstraction.Options{ReceiveTimeout: 10 * time.Millisecond})

	_, _, err := layer.ReceiveSymbol(context.Background())
	assert.ErrorIs(t, err, automaton.ErrReceiveTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = layer.ReceiveSymbol(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, automaton.ErrReceiveTimeout)
}

func TestReceiveAfterPeerClosed(t *testing.T) {
	layer, peer := openPair(t, abstraction.Options{})
	require.NoError(t, peer.Close())

	_, _, err := layer.ReceiveSymbol(context.Background())
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestSendWithMutator(t *testing.T) {
	ctx := context.Background()
	layer, peer := openPair(t, abstraction.Options{
		Mutator: strategies.NewBitFlipMutator(1.0),
		Rand:    rand.New(rand.NewSource(1)),
	})
	hello, _ := testGrammar(t).Symbol("hello")

	require.NoError(t, layer.SendSymbol(ctx, hello))
	raw, err := peer.Read(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, []byte("HELLO "), raw)
	assert.True(t, layer.Transcript().Entries()[0].Mutated)
}

func TestLifecycleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local, _ := channel.NewPipe("idem")
	layer := abstraction.New(local, testGrammar(t), abstraction.Options{Logger: quietLogger()})

	hello, _ := testGrammar(t).Symbol("hello")
	assert.ErrorIs(t, layer.SendSymbol(ctx, hello), channel.ErrNotOpen)

	require.NoError(t, layer.OpenChannel(ctx))
	require.NoError(t, layer.OpenChannel(ctx))
	require.NoError(t, layer.CloseChannel(ctx))
	require.NoError(t, layer.CloseChannel(ctx))
	assert.False(t, layer.Channel().IsOpen())
}

func TestTranscriptBounded(t *testing.T) {
	tr := abstraction.NewTranscript(10)
	for i := 0; i < 25; i++ {
		tr.Add(abstraction.Entry{Direction: abstraction.Inbound, Data: []byte{byte(i)}})
	}
	assert.LessOrEqual(t, tr.Len(), 10)
	assert.Equal(t, uint64(25), tr.Total())

	last := tr.Last(3)
	require.Len(t, last, 3)
	assert.Equal(t, []byte{24}, last[2].Data)
	assert.Equal(t, uint64(25), last[2].Seq)
}
