/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: run.go
Description: Run command. Drives one session of a model over the configured channel and
prints its outcome.
*/

package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/abstraction"
	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/channel"
	"github.com/kleascm/akaylee-automaton/pkg/store"
	"github.com/kleascm/akaylee-automaton/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RunSession executes a single session
func RunSession(cmd *cobra.Command, args []string) error {
	cfg, logs, m, err := prepare()
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.GetLogger()

	role, err := automaton.ParseRole(cfg.Session.Role)
	if err != nil {
		return err
	}

	ch, err := channel.New(cfg.Channel, logger)
	if err != nil {
		return err
	}
	defer func() {
		if ch.IsOpen() {
			ch.Close()
		}
	}()

	mutator, err := buildMutator(cfg.Fuzz, m.Grammar)
	if err != nil {
		return err
	}

	sigCtx, cancel := signalContext(context.Background(), logger)
	defer cancel()
	ctx := sigCtx

	w, err := wire(sigCtx, cfg, m, logs)
	if err != nil {
		return err
	}
	defer w.close()

	seed := resolveSeed(cfg.Session.Seed, logger)
	layer := abstraction.New(ch, m.Grammar, abstraction.Options{
		ReceiveTimeout: cfg.Session.ReceiveTimeout,
		Mutator:        mutator,
		Rand:           rand.New(rand.NewSource(seed)),
		Logger:         logger,
	})

	session, err := automaton.NewSession(m.Automaton, role, layer,
		automaton.WithSeed(seed),
		automaton.WithMaxSteps(cfg.Session.MaxSteps),
		automaton.WithLogger(logger),
		automaton.WithReporters(w.reporters...),
	)
	if err != nil {
		return err
	}

	if cfg.Session.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, cfg.Session.Timeout)
		defer stop()
	}

	logger.WithFields(logrus.Fields{
		"session": session.ID(),
		"role":    role.String(),
		"channel": ch.Name(),
		"fuzz":    mutator != nil,
	}).Info("Starting session")

	w.started(session)
	res, err := session.Run(ctx)
	printResult(res)

	if tr := layer.Transcript(); tr.Total() > 0 {
		fmt.Printf("   Messages:     %d exchanged\n", tr.Total())
	}
	if dir, _ := cmd.Flags().GetString("results-dir"); dir != "" {
		path, werr := utils.WriteResult(dir, "session", res.SessionID, sessionReport{
			Summary:    store.Summarize(m.Name, res),
			Transcript: layer.Transcript().Entries(),
		})
		if werr != nil {
			logger.WithError(werr).Error("Failed to write session result")
		} else {
			fmt.Printf("   Result file:  %s\n", path)
		}
	}
	if p := logs.FilePath(); p != "" {
		fmt.Printf("   Log file:     %s\n", p)
	}
	return sessionError(ctx, sigCtx, err, cfg.Session.Timeout)
}

// ErrSessionTimeout is returned when the configured session timeout expires
var ErrSessionTimeout = errors.New("session timed out")

// sessionError maps the outcome of a run to the command error. A signal is a
// clean stop; expiry of the session deadline is reported as ErrSessionTimeout.
func sessionError(ctx, sigCtx context.Context, err error, timeout time.Duration) error {
	if err == nil || !errors.Is(err, automaton.ErrCancelled) {
		return err
	}
	if sigCtx.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrSessionTimeout, timeout)
	}
	return nil
}

// sessionReport is the JSON document written for a session
type sessionReport struct {
	Summary    store.SessionSummary `json:"summary"`
	Transcript []abstraction.Entry  `json:"transcript"`
}

func printResult(res *automaton.Result) {
	fmt.Println()
	fmt.Printf("Session %s (%s)\n", res.SessionID, res.Role)
	fmt.Printf("   Seed:         %d\n", res.Seed)
	fmt.Printf("   States:       %s -> %s\n", res.InitialState, res.FinalState)
	fmt.Printf("   Steps:        %d\n", res.Steps)
	fmt.Printf("   Stop reason:  %s\n", res.Reason)
	fmt.Printf("   Duration:     %s\n", res.Duration())
	if res.Err != nil {
		fmt.Printf("   Error:        %v\n", res.Err)
	}
}
