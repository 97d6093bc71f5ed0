package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/t031a5/internal/action"
	"github.com/normanking/t031a5/internal/bus"
	"github.com/normanking/t031a5/internal/config"
	"github.com/normanking/t031a5/internal/conversation"
	"github.com/normanking/t031a5/internal/dashboard"
	"github.com/normanking/t031a5/internal/data"
	"github.com/normanking/t031a5/internal/drivers"
	"github.com/normanking/t031a5/internal/fuser"
	"github.com/normanking/t031a5/internal/input"
	"github.com/normanking/t031a5/internal/llm"
	"github.com/normanking/t031a5/internal/logging"
	"github.com/normanking/t031a5/internal/metrics"
	"github.com/normanking/t031a5/internal/movement"
	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/internal/runtime"
	"github.com/normanking/t031a5/internal/safety"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RUN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

// errEmergency makes the process exit non-zero after an emergency stop.
var errEmergency = errors.New("runtime ended with an emergency stop")

func runCmd() *cobra.Command {
	var (
		hertz  float64
		cycles uint64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision loop",
		Long: `Run the decision loop until interrupted.

The first SIGINT/SIGTERM stops the loop gracefully; a second one triggers
an emergency stop of every actuator.

Examples:
  cortex run
  cortex run --hertz 5 --cycles 100
  cortex run --config ./g1.yaml -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("hertz") {
				cfg.Hertz = hertz
			}
			if verbose {
				cfg.Logging.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", getConfigPath(), err)
			}
			return runRuntime(cmd.Context(), cfg, cycles)
		},
	}
	cmd.Flags().Float64Var(&hertz, "hertz", 0, "loop frequency override (1-100)")
	cmd.Flags().Uint64Var(&cycles, "cycles", 0, "stop after N cycles (0 runs until interrupted)")
	return cmd
}

// app holds the assembled runtime and the resources main owns.
type app struct {
	log       zerolog.Logger
	cortex    *runtime.Cortex
	bus       *bus.Bus
	dashboard *dashboard.Server
}

func runRuntime(ctx context.Context, cfg *config.Config, maxCycles uint64) error {
	log, logCloser, err := logging.New(cfg.Logging.ToLogging())
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logging.SetGlobal(log)

	a, err := buildApp(cfg, maxCycles, log)
	if err != nil {
		return err
	}
	defer a.bus.Close()

	if err := a.cortex.Initialize(ctx); err != nil {
		if serr := a.cortex.Stop(ctx); serr != nil {
			log.Warn().Err(serr).Msg("cleanup after failed initialization")
		}
		return err
	}
	if a.dashboard != nil {
		if err := a.dashboard.Start(ctx); err != nil {
			if serr := a.cortex.Stop(ctx); serr != nil {
				log.Warn().Err(serr).Msg("cleanup after dashboard failure")
			}
			return err
		}
	}

	done := make(chan struct{})
	defer close(done)
	go handleSignals(a, done)

	if err := a.cortex.Run(ctx); err != nil {
		switch {
		case errors.Is(err, runtime.ErrEmergencyStopped):
			return errEmergency
		case errors.Is(err, runtime.ErrStopped):
			// Stopped by a signal before the loop started.
			return nil
		}
		return err
	}
	if a.cortex.Status(context.Background()).Emergency {
		return errEmergency
	}
	return nil
}

// handleSignals stops the loop on the first signal and forces an emergency
// stop on the second.
func handleSignals(a *app, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	stopping := false
	for {
		select {
		case sig := <-sigCh:
			if !stopping {
				stopping = true
				a.log.Info().Str("signal", sig.String()).Msg("stopping, signal again for emergency stop")
				go func() {
					if err := a.cortex.Stop(context.Background()); err != nil {
						a.log.Warn().Err(err).Msg("stop finished with errors")
					}
				}()
				continue
			}
			if err := a.cortex.EmergencyStop(context.Background()); err != nil {
				a.log.Error().Err(err).Msg("emergency stop finished with errors")
			}
		case <-done:
			return
		}
	}
}

// buildApp wires every component from the configuration.
func buildApp(cfg *config.Config, maxCycles uint64, log zerolog.Logger) (*app, error) {
	promReg := metrics.NewRegistry()
	m := promReg.Metrics
	b := bus.New()

	reg := plugin.NewRegistry()
	drivers.Register(reg)

	inputs := input.NewFromConfig(cfg.InputPlugins(), reg, log,
		input.WithCallTimeout(cfg.Timeouts.PluginCall),
		input.WithLifecycleTimeout(cfg.Timeouts.Lifecycle),
		input.WithMetrics(m),
		input.WithFailureHook(runtime.FailureReporter(b, "input")))

	actions := action.NewFromConfig(cfg.ActionPlugins(), reg, log,
		action.WithCallTimeout(cfg.Timeouts.PluginCall),
		action.WithLifecycleTimeout(cfg.Timeouts.Lifecycle),
		action.WithEmergencyTimeout(cfg.Timeouts.EmergencyStop),
		action.WithMetrics(m),
		action.WithFailureHook(runtime.FailureReporter(b, "action")))

	fz, err := fuser.New(cfg.Fuser, log)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create fuser: %w", err)
	}

	llmCfg := cfg.LLM
	llmCfg.Timeout = cfg.GenerationTimeout()
	gen := llm.NewGenerator(llmCfg, log, m)

	var store *data.Store
	if cfg.History.Enabled {
		store, err = openHistory(cfg.History, log)
		if err != nil {
			b.Close()
			return nil, err
		}
	}

	deps := runtime.Deps{
		Inputs:    inputs,
		Actions:   actions,
		Fuser:     fz,
		Generator: gen,
		Safety:    safety.NewMonitor(cfg.Safety, log),
		Bus:       b,
		Metrics:   m,
	}
	if store != nil {
		deps.History = store
	}

	if cfg.Conversation.Enabled {
		opts := []conversation.Option{
			conversation.WithMetrics(m),
			conversation.WithPolicy(cfg.SystemPrompt),
			conversation.WithSessionID(uuid.NewString()),
		}
		if store != nil {
			opts = append(opts, conversation.WithHistorySink(store))
		}
		deps.Engine = conversation.New(cfg.Conversation, gen, actions, movement.Default(), log, opts...)
	}

	cortex, err := runtime.New(runtime.Config{
		Name:             cfg.Name,
		Hertz:            cfg.Hertz,
		SystemPrompt:     cfg.SystemPrompt,
		MaxCycles:        maxCycles,
		EmergencyTimeout: cfg.Timeouts.EmergencyStop,
		WarmStart:        cfg.History.WarmStart,
	}, deps, log)
	if err != nil {
		if store != nil {
			store.Close()
		}
		b.Close()
		return nil, err
	}

	a := &app{log: log, cortex: cortex, bus: b}
	if cfg.Dashboard.Enabled {
		a.dashboard = dashboard.New(dashboard.Config{
			Addr:   cfg.Dashboard.Addr,
			Replay: cfg.Dashboard.Replay,
		}, b, func(ctx context.Context) any {
			return cortex.Status(ctx)
		}, promReg.Handler(), log)
		cortex.AttachController(a.dashboard)
	}
	return a, nil
}

func openHistory(cfg config.HistoryConfig, log zerolog.Logger) (*data.Store, error) {
	store, err := data.NewDB(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if cfg.Retention > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		removed, err := store.Prune(ctx, time.Now().Add(-cfg.Retention))
		if err != nil {
			log.Warn().Err(err).Msg("history prune failed")
		} else if removed > 0 {
			log.Info().Int64("removed", removed).Msg("pruned conversation history")
		}
	}
	log.Debug().Str("path", store.Path()).Msg("history store opened")
	return store, nil
}
