package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/analysis"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/events"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/store"
)

// analysisEnv holds the initialized model port, store and service needed
// by the analyze/check/serve commands.
type analysisEnv struct {
	Store   store.Store // nil when store.driver is none
	Invoker *llm.Resilient
	Service *analysis.Service
}

// Close releases resources held by the environment.
func (e *analysisEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initAnalysis validates config for mode, opens the store, builds the
// model port and the analysis service. Callers should defer env.Close().
func initAnalysis(ctx context.Context, mode string) (*analysisEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	env := &analysisEnv{Store: st}

	inv, err := llm.New(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "init model port")
	}
	env.Invoker = inv

	var (
		sink events.EventAppender
		runs analysis.RunRecorder
	)
	if st != nil {
		sink, runs = st, st
	}

	svc, err := analysis.Build(cfg, inv, events.NewBus(events.LogSubscriber{}), sink, runs)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "build analysis service")
	}
	env.Service = svc
	return env, nil
}

// openStore opens the configured store for read-only commands. It fails
// when the store is disabled.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "" || cfg.Store.Driver == "none" {
		return nil, eris.New("store is disabled (store.driver=none)")
	}
	return store.Open(ctx, cfg.Store)
}
