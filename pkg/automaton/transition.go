/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: transition.go
Description: Transitions are the directed edges of the automaton. A transition is either a
data exchange guarded by an input symbol or a channel lifecycle event (open, close).
Targets are state identifiers resolved through the automaton's state table.
*/

package automaton

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/sirupsen/logrus"
)

// TransitionKind is the closed set of transition variants
type TransitionKind int

const (
	KindData         TransitionKind = iota // Symbol exchange
	KindOpenChannel                        // Establishes the channel
	KindCloseChannel                       // Tears the channel down
)

// String returns the kind name
func (k TransitionKind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindOpenChannel:
		return "OpenChannel"
	case KindCloseChannel:
		return "CloseChannel"
	default:
		return fmt.Sprintf("TransitionKind(%d)", int(k))
	}
}

// IsLifecycle reports whether the kind manages the channel instead of data
func (k TransitionKind) IsLifecycle() bool {
	return k == KindOpenChannel || k == KindCloseChannel
}

// ParseTransitionKind accepts both model file names (open_channel) and kind names (OpenChannel)
func ParseTransitionKind(s string) (TransitionKind, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "data", "":
		return KindData, nil
	case "openchannel", "open":
		return KindOpenChannel, nil
	case "closechannel", "close":
		return KindCloseChannel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Transition is an edge from Source to Target
type Transition struct {
	ID     string
	Name   string
	Kind   TransitionKind
	Source string
	Target string

	// Data transitions only
	Input  *grammar.Symbol // Accepted inbound symbol; what the master emits
	Output *grammar.Symbol // Reply; what the client emits, what the master expects
}

// NewDataTransition creates a symbol exchange transition
func NewDataTransition(id, name, source, target string, input, output *grammar.Symbol) *Transition {
	return &Transition{ID: id, Name: name, Kind: KindData, Source: source, Target: target, Input: input, Output: output}
}

// NewOpenChannelTransition creates a transition that opens the channel
func NewOpenChannelTransition(id, name, source, target string) *Transition {
	return &Transition{ID: id, Name: name, Kind: KindOpenChannel, Source: source, Target: target}
}

// NewCloseChannelTransition creates a transition that closes the channel
func NewCloseChannelTransition(id, name, source, target string) *Transition {
	return &Transition{ID: id, Name: name, Kind: KindCloseChannel, Source: source, Target: target}
}

// IsValid reports whether sym selects this transition. Lifecycle transitions
// are selected by kind and never accept a symbol.
func (t *Transition) IsValid(sym *grammar.Symbol) bool {
	switch t.Kind {
	case KindData:
		return sym != nil && t.Input != nil && t.Input.Equal(sym)
	case KindOpenChannel, KindCloseChannel:
		return false
	default:
		return false
	}
}

// Execute runs the transition under role and returns the target state ID.
// Mismatched replies are attributed to the source state.
func (t *Transition) Execute(ctx context.Context, role Role, rt *Runtime) (string, error) {
	return t.execute(ctx, role, rt, nil, nil)
}

// execute runs the transition on behalf of owner. A nil owner stands for a
// transition executed outside a state.
func (t *Transition) execute(ctx context.Context, role Role, rt *Runtime, owner *State, received *grammar.Symbol) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: %d", ErrUnknownRole, int(role))
	}

	var err error
	switch t.Kind {
	case KindData:
		switch role {
		case RoleClient:
			err = t.reply(ctx, rt)
		case RoleMaster:
			err = t.drive(ctx, rt, owner)
		}
	case KindOpenChannel:
		if err = rt.Layer.OpenChannel(ctx); err != nil {
			err = channelFailure("open", err)
		}
	case KindCloseChannel:
		err = t.close(ctx, rt)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownKind, int(t.Kind))
	}
	if err != nil {
		return "", err
	}

	rt.executed(t, role, received)
	return t.Target, nil
}

// reply emits the output symbol once the owning state consumed the input
func (t *Transition) reply(ctx context.Context, rt *Runtime) error {
	if t.Output == nil {
		return nil
	}
	if err := rt.Layer.SendSymbol(ctx, t.Output); err != nil {
		return channelFailure("send", err)
	}
	return nil
}

// drive emits the input symbol and checks the peer's reply against the output symbol
func (t *Transition) drive(ctx context.Context, rt *Runtime, owner *State) error {
	if t.Input != nil {
		if err := rt.Layer.SendSymbol(ctx, t.Input); err != nil {
			return channelFailure("send", err)
		}
	}
	if t.Output == nil {
		return nil
	}

	sym, raw, err := rt.Layer.ReceiveSymbol(ctx)
	switch {
	case errors.Is(err, ErrReceiveTimeout):
		rt.log().WithField("transition", t.ID).Warn("No reply from peer")
		return nil
	case err != nil:
		return channelFailure("receive", err)
	}
	if !t.Output.Equal(sym) {
		rt.log().WithFields(logrus.Fields{
			"transition": t.ID,
			"expected":   t.Output.ID,
			"received":   sym.String(),
		}).Warn("Unexpected reply from peer")
		if owner == nil {
			owner = NewState(t.Source, t.Source)
		}
		rt.rejected(owner, RoleMaster, sym, raw)
	}
	return nil
}

// close tears the channel down; failures other than cancellation are tolerated
func (t *Transition) close(ctx context.Context, rt *Runtime) error {
	err := rt.Layer.CloseChannel(ctx)
	if err == nil {
		return nil
	}
	if isCancellation(err) {
		return channelFailure("close", err)
	}
	rt.log().WithError(err).WithField("transition", t.ID).Warn("Failed to close channel")
	return nil
}

func (t *Transition) String() string {
	return fmt.Sprintf("%s(%s: %s -> %s)", t.Kind, t.ID, t.Source, t.Target)
}
