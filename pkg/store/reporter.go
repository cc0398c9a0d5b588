/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter persisting a session as it runs: one stride per executed transition
and the summary when the session stops.
*/

package store

import (
	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/sirupsen/logrus"
)

var _ automaton.Reporter = (*StoreReporter)(nil)

// StoreReporter writes session events into a Store. Write errors are logged;
// they never interrupt the session.
type StoreReporter struct {
	automaton.NopReporter
	store  *Store
	model  string
	logger *logrus.Logger
}

// NewReporter creates a reporter recording sessions of model
func NewReporter(s *Store, model string, logger *logrus.Logger) *StoreReporter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StoreReporter{store: s, model: model, logger: logger}
}

// OnTransitionExecuted appends a stride
func (r *StoreReporter) OnTransitionExecuted(ev automaton.TransitionEvent) {
	st := Stride{
		Transition: ev.Transition.ID,
		Kind:       ev.Transition.Kind.String(),
		Source:     ev.Transition.Source,
		Target:     ev.Transition.Target,
		Time:       ev.Time,
	}
	if ev.Received != nil {
		st.Received = ev.Received.ID
	}
	if _, err := r.store.AppendStride(ev.SessionID, st); err != nil {
		r.logger.WithError(err).WithField("session", ev.SessionID).Error("Failed to record stride")
	}
}

// OnSessionFinished stores the summary
func (r *StoreReporter) OnSessionFinished(res *automaton.Result) {
	if err := r.store.SaveSession(Summarize(r.model, res)); err != nil {
		r.logger.WithError(err).WithField("session", res.SessionID).Error("Failed to record session")
	}
}
