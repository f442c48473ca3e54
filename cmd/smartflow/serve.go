package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sicko7947/smartflow/api"
	"github.com/sicko7947/smartflow/engine"
	"github.com/sicko7947/smartflow/optimizer"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *Config) error {
	logger, err := NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	execStore, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	resultCache, closeCache, err := OpenCache(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer closeCache()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engineCfg := cfg.EngineConfig()
	learner := optimizer.NewLearner(execStore, logger, engineCfg)
	learner.Load(ctx)

	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithConfig(engineCfg),
		engine.WithLearner(learner),
		engine.WithCollaborators(NewCollaborators(cfg.Collaborators)),
		engine.WithMetrics(engine.NewMetrics(registry)),
	}
	if resultCache != nil {
		engineOpts = append(engineOpts, engine.WithResultCache(resultCache))
	}
	eng := engine.NewEngine(execStore, engineOpts...)

	server := api.New(eng, execStore,
		api.WithLogger(logger),
		api.WithHistory(learner.History()),
		api.WithGatherer(registry),
	)

	workflows, err := LoadWorkflows(cfg.Workflows)
	if err != nil {
		return err
	}
	for _, wf := range workflows {
		live, err := server.Register(ctx, wf)
		if err != nil {
			return err
		}
		logger.Info().Str("workflowId", live.ID).Int("version", live.Version).Msg("Registered workflow")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	if err := server.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("Listener returned an error")
	}

	logger.Info().Msg("Server stopped")
	return nil
}
