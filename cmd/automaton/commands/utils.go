/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared helpers for the automaton commands: configuration loading, logging
setup, signal handling and the optional store and metrics wiring.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kleascm/akaylee-automaton/pkg/automaton"
	"github.com/kleascm/akaylee-automaton/pkg/config"
	"github.com/kleascm/akaylee-automaton/pkg/grammar"
	"github.com/kleascm/akaylee-automaton/pkg/logging"
	"github.com/kleascm/akaylee-automaton/pkg/model"
	"github.com/kleascm/akaylee-automaton/pkg/monitoring"
	"github.com/kleascm/akaylee-automaton/pkg/store"
	"github.com/kleascm/akaylee-automaton/pkg/strategies"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from defaults, file, environment and flags
func LoadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper(), viper.GetString("config"))
}

// SetupLogging builds the logger described by the configuration
func SetupLogging(cfg *config.Config) (*logging.Logger, error) {
	l, err := logging.NewLogger(logging.FromConfig(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return l, nil
}

// prepare loads configuration, logging and the model
func prepare() (*config.Config, *logging.Logger, *model.Model, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Model == "" {
		return nil, nil, nil, fmt.Errorf("no model given (use --model or the model key)")
	}
	logger, err := SetupLogging(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := model.Load(cfg.Model)
	if err != nil {
		logger.Close()
		return nil, nil, nil, err
	}
	logger.GetLogger().WithFields(logrus.Fields{
		"model":   m.Name,
		"symbols": m.Grammar.Len(),
		"states":  len(m.Automaton.States()),
	}).Info("Model loaded")
	return cfg, logger, m, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context, logger *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.WithField("signal", sig.String()).Warn("Received shutdown signal, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// resolveSeed returns the configured seed or a time based one
func resolveSeed(seed int64, logger *logrus.Logger) int64 {
	if seed != 0 {
		return seed
	}
	seed = time.Now().UnixNano()
	logger.WithField("seed", seed).Info("No seed configured, using a time based seed")
	return seed
}

// buildMutator returns the configured mutator, or nil when fuzzing is off
func buildMutator(cfg config.FuzzConfig, g *grammar.Grammar) (strategies.Mutator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	m, err := strategies.NewMutator(cfg.Strategy, cfg.MutationRate, cfg.ChainLength)
	if err != nil {
		return nil, err
	}
	if cfg.Structured {
		return strategies.NewGrammarMutator(g, m), nil
	}
	return m, nil
}

// wiring holds the optional reporters of a command
type wiring struct {
	reporters []automaton.Reporter
	metrics   *monitoring.Metrics
	store     *store.Store
}

func (w *wiring) close() {
	if w.store != nil {
		w.store.Close()
	}
}

// started marks a session as running in the metrics
func (w *wiring) started(*automaton.Session) {
	if w.metrics != nil {
		w.metrics.Started()
	}
}

// wire opens the store and starts the metrics server as configured
func wire(ctx context.Context, cfg *config.Config, m *model.Model, logs *logging.Logger) (*wiring, error) {
	logger := logs.GetLogger()
	w := &wiring{reporters: []automaton.Reporter{logs.Reporter()}}

	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		if err := s.SaveModel(m.Automaton.Snapshot()); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to store model: %w", err)
		}
		w.store = s
		w.reporters = append(w.reporters, store.NewReporter(s, m.Name, logger))
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := monitoring.NewMetrics(reg)
		if err != nil {
			w.close()
			return nil, err
		}
		w.metrics = metrics
		w.reporters = append(w.reporters, monitoring.NewPrometheusReporter(metrics))
		go func() {
			if err := monitoring.Serve(ctx, cfg.Metrics.Address, reg, logger); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}
	return w, nil
}

// openStore opens the configured store for read-only commands
func openStore() (*store.Store, error) {
	path := viper.GetString("store.path")
	if path == "" {
		cfg, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no store configured (use --store or the store.path key)")
	}
	return store.Open(path)
}
