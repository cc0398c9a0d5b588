/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Session reporter backed by the logging system. State changes are logged at
debug level, transitions and session outcomes at info level, rejected data as warnings.
*/

package logging

import (
	"encoding/hex"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/sirupsen/logrus"
)

// SessionReporter logs automaton events through a Logger
type SessionReporter struct {
	logs *Logger
}

// Reporter returns a session reporter writing to this logger
func (l *Logger) Reporter() *SessionReporter {
	return &SessionReporter{logs: l}
}

// OnStateActivated logs state entry
func (r *SessionReporter) OnStateActivated(ev automaton.StateEvent) {
	r.logs.logger.WithFields(logrus.Fields{
		"session": ev.SessionID,
		"role":    ev.Role.String(),
		"state":   ev.State.ID,
	}).Debugf("Execute state %s", ev.State.Name)
}

// OnStateDeactivated logs state exit
func (r *SessionReporter) OnStateDeactivated(ev automaton.StateEvent) {
	r.logs.logger.WithFields(logrus.Fields{
		"session": ev.SessionID,
		"state":   ev.State.ID,
	}).Debug("State deactivated")
}

// OnTransitionExecuted logs executed transitions
func (r *SessionReporter) OnTransitionExecuted(ev automaton.TransitionEvent) {
	r.logs.LogTransition(ev)
}

// OnSymbolRejected logs protocol mismatches
func (r *SessionReporter) OnSymbolRejected(ev automaton.MismatchEvent) {
	fields := logrus.Fields{
		"session": ev.SessionID,
		"role":    ev.Role.String(),
		"state":   ev.State.ID,
		"raw":     hex.EncodeToString(ev.Raw),
	}
	if ev.Symbol != nil {
		fields["symbol"] = ev.Symbol.ID
		r.logs.logger.WithFields(fields).Warn("The message abstracted in a symbol is not valid according to the automaton")
		return
	}
	r.logs.logger.WithFields(fields).Warn("Received data matches no symbol of the grammar")
}

// OnSessionFinished logs the session outcome
func (r *SessionReporter) OnSessionFinished(res *automaton.Result) {
	r.logs.LogSession(res)
}
