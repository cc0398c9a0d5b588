/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Error taxonomy of the automaton. Protocol mismatches are recovered locally,
channel failures end a session, cancellation is always surfaced to the caller and model
exhaustion is a normal stop reason rather than an error.
*/

package automaton

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProtocolMismatch marks inbound data that no outgoing transition accepts
	ErrProtocolMismatch = errors.New("protocol mismatch")
	// ErrCancelled marks a session stopped by cancellation or deadline
	ErrCancelled = errors.New("session cancelled or timed out")
	// ErrReceiveTimeout is returned by a layer when no data arrived within its idle window
	ErrReceiveTimeout = errors.New("no data received before idle timeout")

	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownKind       = errors.New("unknown transition kind")
	ErrUnknownState      = errors.New("unknown state")
	ErrDuplicateState    = errors.New("duplicate state")
	ErrForeignTransition = errors.New("transition source does not match state")
	ErrNoInitialState    = errors.New("automaton has no initial state")
)

// ChannelError reports a transport level failure of the abstraction layer
type ChannelError struct {
	Op  string // open, send, receive
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// IsChannelFailure reports whether err carries a ChannelError
func IsChannelFailure(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce)
}

func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// channelFailure classifies a layer error for op
func channelFailure(op string, err error) error {
	if errors.Is(err, ErrCancelled) {
		return err
	}
	if isCancellation(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrCancelled, err)
	}
	return &ChannelError{Op: op, Err: err}
}
