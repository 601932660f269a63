package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/abhisek/adaptiq/internal/analysis"
	"github.com/abhisek/adaptiq/internal/archive"
	"github.com/abhisek/adaptiq/internal/config"
	"github.com/abhisek/adaptiq/internal/difficulty"
	"github.com/abhisek/adaptiq/internal/event"
	"github.com/abhisek/adaptiq/internal/generator"
	"github.com/abhisek/adaptiq/internal/llm"
	"github.com/abhisek/adaptiq/internal/pool"
	"github.com/abhisek/adaptiq/internal/session"
	"github.com/abhisek/adaptiq/internal/store"
	"github.com/spf13/cobra"
)

// runtime holds everything a command needs to run sessions.
type runtime struct {
	cfg      config.Config
	store    *store.Store
	provider llm.Provider // nil when no LLM is configured
	gen      generator.Generator
	manager  *session.Manager
	logger   *slog.Logger

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rng returns the seeded source, or a clock-seeded one when no seed is set.
func (r *runtime) rng() *rand.Rand {
	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// openProvider builds the LLM provider. The app works without one: the
// pool falls back to templated questions and results skip the narrative.
func openProvider(ctx context.Context, rec llm.Recorder, logger *slog.Logger) llm.Provider {
	cfg, ok := llm.Resolve()
	if !ok {
		logger.Warn("LLM provider not configured, question generation uses templates")
		return nil
	}
	provider, err := llm.NewProvider(ctx, cfg, rec, logger)
	if err != nil {
		logger.Warn("LLM provider unavailable, question generation uses templates", "error", err)
		return nil
	}
	return provider
}

// openGenerator returns the LLM generator, or nil when no provider is
// available. The template fallback is wired separately so its placeholders
// never reach the bank.
func (r *runtime) openGenerator() generator.Generator {
	if r.provider == nil {
		return nil
	}
	return generator.NewLLM(r.provider, generator.DefaultConfig(), r.logger)
}

// openRuntime wires the store, LLM provider, question pool, analyzer and
// session manager. With publish set, lifecycle events also go to AMQP and
// results are mirrored to the PostgreSQL archive when configured.
func openRuntime(cmd *cobra.Command, publish bool) (*runtime, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	st, err := openStore(cmd, cfg)
	if err != nil {
		return nil, err
	}
	r := &runtime{cfg: cfg, store: st, logger: logger, closers: []func() error{st.Close}}

	r.provider = openProvider(ctx, st.Events(), logger)
	r.gen = r.openGenerator()

	src := pool.New(st.Questions(), r.rng(), pool.Config{GeneratorTimeout: cfg.GeneratorTimeout},
		pool.WithGenerator(r.gen),
		pool.WithFallback(generator.NewFallback(r.rng())),
		pool.WithLogger(logger))

	analyzerOpts := []analysis.Option{analysis.WithLogger(logger)}
	if cfg.Narrator && r.provider != nil {
		narrator := analysis.NewLLMNarrator(r.provider, analysis.DefaultNarratorConfig())
		analyzerOpts = append(analyzerOpts, analysis.WithNarrator(narrator, cfg.NarratorTimeout))
	}

	var results session.ResultPersistence = st.Results()
	sinks := session.MultiSink{st.Events()}

	if publish && cfg.ArchiveDSN != "" {
		arch, err := archive.Open(cfg.ArchiveDSN)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open result archive: %w", err)
		}
		r.closers = append(r.closers, arch.Close)
		results = archive.NewTee(st.Results(), arch, logger)
		logger.Info("mirroring results to archive")
	}
	if publish && cfg.AMQPURL != "" {
		pub, err := event.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("connect event broker: %w", err)
		}
		r.closers = append(r.closers, pub.Close)
		sinks = append(sinks, pub)
		logger.Info("publishing session events", "exchange", cfg.AMQPExchange)
	}

	r.manager = session.NewManager(
		session.NewStore(st.Sessions()),
		src,
		analysis.New(analyzerOpts...),
		session.Settings{
			DefaultTimeLimit: cfg.DefaultTimeLimit,
			Policy:           difficulty.NewPolicy(cfg.DifficultyWindow),
			Retention:        cfg.Retention,
		},
		session.WithResults(results),
		session.WithEvents(sinks),
		session.WithLogger(logger),
	)
	return r, nil
}
