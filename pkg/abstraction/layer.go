/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: layer.go
Description: Abstraction layer between the automaton and a message channel. Outbound
symbols are encoded through the grammar (and optionally fuzzed); inbound bytes are
resolved back to a symbol. The layer is the only component touching the channel.
*/

package abstraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/channel"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/kleascm/akaylee-automaton/pkg/strategies"
	"github.com/sirupsen/logrus"
)

var _ automaton.AbstractionLayer = (*Layer)(nil)

// Options configures a Layer
type Options struct {
	ReceiveTimeout time.Duration      // Idle window per receive; 0 waits for the caller's context
	Mutator        strategies.Mutator // Applied to every encoded payload when set
	Rand           *rand.Rand         // Drives encoding and mutation
	Logger         *logrus.Logger
	TranscriptSize int
}

// Layer implements automaton.AbstractionLayer over a channel.Channel
type Layer struct {
	ch         channel.Channel
	grammar    *grammar.Grammar
	opts       Options
	logger     *logrus.Logger
	transcript *Transcript
}

// New creates a layer speaking g over ch
func New(ch channel.Channel, g *grammar.Grammar, opts Options) *Layer {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Layer{
		ch:         ch,
		grammar:    g,
		opts:       opts,
		logger:     logger,
		transcript: NewTranscript(opts.TranscriptSize),
	}
}

// Transcript returns the exchanged messages
func (l *Layer) Transcript() *Transcript {
	return l.transcript
}

// Channel returns the underlying channel
func (l *Layer) Channel() channel.Channel {
	return l.ch
}

// ReceiveSymbol reads one message and resolves it against the grammar
func (l *Layer) ReceiveSymbol(ctx context.Context) (*grammar.Symbol, []byte, error) {
	rctx := ctx
	if l.opts.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, l.opts.ReceiveTimeout)
		defer cancel()
	}

	data, err := l.ch.Read(rctx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, automaton.ErrReceiveTimeout
		}
		return nil, nil, err
	}

	sym := l.grammar.Resolve(data)
	entry := Entry{Direction: Inbound, Data: data}
	if sym != nil {
		entry.Symbol = sym.ID
	}
	l.transcript.Add(entry)

	l.logger.WithFields(logrus.Fields{
		"channel": l.ch.Name(),
		"symbol":  sym.String(),
		"bytes":   len(data),
	}).Debug("Message received")
	return sym, data, nil
}

// SendSymbol encodes sym and writes it to the channel
func (l *Layer) SendSymbol(ctx context.Context, sym *grammar.Symbol) error {
	if sym == nil {
		return errors.New("cannot send a nil symbol")
	}
	data, err := sym.Encode(l.opts.Rand)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", sym.ID, err)
	}

	mutated := false
	if l.opts.Mutator != nil {
		fuzzed := l.opts.Mutator.Mutate(data, l.opts.Rand)
		mutated = !bytes.Equal(fuzzed, data)
		data = fuzzed
	}

	if err := l.ch.Write(ctx, data); err != nil {
		return err
	}
	l.transcript.Add(Entry{Direction: Outbound, Symbol: sym.ID, Data: data, Mutated: mutated})

	l.logger.WithFields(logrus.Fields{
		"channel": l.ch.Name(),
		"symbol":  sym.ID,
		"bytes":   len(data),
		"mutated": mutated,
	}).Debug("Message sent")
	return nil
}

// OpenChannel opens the channel unless it is already open
func (l *Layer) OpenChannel(ctx context.Context) error {
	if l.ch.IsOpen() {
		return nil
	}
	if err := l.ch.Open(ctx); err != nil {
		return err
	}
	l.logger.WithField("channel", l.ch.Name()).Info("Channel opened")
	return nil
}

// CloseChannel closes the channel unless it is already closed
func (l *Layer) CloseChannel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.ch.IsOpen() {
		return nil
	}
	if err := l.ch.Close(); err != nil {
		return err
	}
	l.logger.WithField("channel", l.ch.Name()).Info("Channel closed")
	return nil
}
