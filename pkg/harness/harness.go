/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: harness.go
Description: Self-play harness. Runs pairs of sessions over in-memory pipes, one walking
the model as master and one as client, all pairs concurrently. The first pair that stops
on a channel failure or an error cancels the others.
*/

package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/abstraction"
	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/channel"
	"github.com/kleascm/akaylee-automaton/pkg/model"
	"github.com/kleascm/akaylee-automaton/pkg/strategies"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config configures a harness run
type Config struct {
	Pairs          int
	Seed           int64         // Base seed; pair i uses Seed+2i (master) and Seed+2i+1 (client)
	MaxSteps       int           // Per session; 0 = unlimited
	Timeout        time.Duration // Whole run; 0 = none
	ReceiveTimeout time.Duration
	Mutator        strategies.Mutator // Applied to master payloads when set
	Reporters      []automaton.Reporter
	BeforeRun      func(*automaton.Session)
	Logger         *logrus.Logger
}

// PairResult holds both sides of one pair
type PairResult struct {
	Index  int
	Master *automaton.Result
	Client *automaton.Result
}

// OK reports whether both sides reached a terminal state
func (p PairResult) OK() bool {
	return p.Master != nil && p.Client != nil &&
		p.Master.Reason == automaton.StopModelExhausted &&
		p.Client.Reason == automaton.StopModelExhausted
}

// Run plays cfg.Pairs master/client pairs of m against each other. Results are
// returned for every pair even when err is not nil.
func Run(ctx context.Context, m *model.Model, cfg Config) ([]PairResult, error) {
	if cfg.Pairs <= 0 {
		cfg.Pairs = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
		logger.WithField("seed", cfg.Seed).Info("No seed configured, using a time based seed")
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	results := make([]PairResult, cfg.Pairs)
	sessions := make([][2]*automaton.Session, cfg.Pairs)
	for i := range sessions {
		results[i].Index = i
		masterEnd, clientEnd := channel.NewPipe(fmt.Sprintf("%s-%d", m.Name, i))
		base := cfg.Seed + int64(2*i)

		master, err := newSession(m, automaton.RoleMaster, masterEnd, base, cfg.Mutator, cfg, logger)
		if err != nil {
			return results, err
		}
		client, err := newSession(m, automaton.RoleClient, clientEnd, base+1, nil, cfg, logger)
		if err != nil {
			return results, err
		}
		sessions[i] = [2]*automaton.Session{master, client}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, pair := range sessions {
		i, master, client := i, pair[0], pair[1]
		g.Go(func() error {
			res, err := run(gctx, master, cfg.BeforeRun)
			results[i].Master = res
			return err
		})
		g.Go(func() error {
			res, err := run(gctx, client, cfg.BeforeRun)
			results[i].Client = res
			return err
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", automaton.ErrCancelled, ctx.Err())
	}
	passed := 0
	for _, r := range results {
		if r.OK() {
			passed++
		}
	}
	logger.WithFields(logrus.Fields{
		"model":  m.Name,
		"pairs":  cfg.Pairs,
		"passed": passed,
	}).Info("Harness finished")
	return results, err
}

func newSession(m *model.Model, role automaton.Role, ch channel.Channel, seed int64, mut strategies.Mutator, cfg Config, logger *logrus.Logger) (*automaton.Session, error) {
	layer := abstraction.New(ch, m.Grammar, abstraction.Options{
		ReceiveTimeout: cfg.ReceiveTimeout,
		Mutator:        mut,
		Rand:           rand.New(rand.NewSource(seed)),
		Logger:         logger,
	})
	s, err := automaton.NewSession(m.Automaton, role, layer,
		automaton.WithSeed(seed),
		automaton.WithMaxSteps(cfg.MaxSteps),
		automaton.WithLogger(logger),
		automaton.WithReporters(cfg.Reporters...),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// run plays one side. Cancellation is not reported as a failure of the side.
func run(ctx context.Context, s *automaton.Session, before func(*automaton.Session)) (*automaton.Result, error) {
	if before != nil {
		before(s)
	}
	res, err := s.Run(ctx)
	if err == nil || errors.Is(err, automaton.ErrCancelled) {
		return res, nil
	}
	return res, fmt.Errorf("session %s (%s): %w", s.ID(), s.Role(), err)
}
