package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/formkeeper/internal/bundle"
	"github.com/solatis/formkeeper/internal/core/api"
	"github.com/solatis/formkeeper/internal/core/metrics"
	"github.com/solatis/formkeeper/internal/core/server"
	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC rule engine service",
	PreRunE: bindFlags(map[string]string{
		"server.host":         "host",
		"server.port":         "port",
		"server.metrics_addr": "metrics-addr",
		"rules.bundle_path":   "bundle",
		"rules.watch":         "watch",
	}),
	RunE: runServe,
}

// newWatcher is replaced in tests.
var newWatcher = bundle.NewWatcher

func init() {
	rootCmd.AddCommand(serveCmd)
	flags := serveCmd.Flags()
	flags.String("host", "0.0.0.0", "gRPC server host")
	flags.Int("port", 50051, "gRPC server port")
	flags.String("metrics-addr", ":9090", "metrics listen address (empty disables)")
	flags.String("bundle", "", "rule bundle file (default: embedded clinical bundle)")
	flags.Bool("watch", false, "reload the bundle file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	cfg := e.cfg

	registry, err := e.loadRegistry(ctx, true)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	collector.SetRulesLoaded(registry.Len())
	engine := rules.NewEngine(registry, e.logger, collector)

	opts := []api.Option{
		api.WithTriggerActions(cfg.Rules.TriggerActions),
		api.WithRulesChanged(collector.SetRulesLoaded),
	}
	if e.store != nil {
		opts = append(opts, api.WithStore(e.store))
	}
	service, err := api.NewRuleService(engine, e.logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Server, service, collector, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Created before any listener starts, so a failure leaves nothing running
	var watcher *bundle.Watcher
	if cfg.Rules.Watch {
		watcher, err = newWatcher(cfg.Rules.BundlePath, cfg.Rules.WatchDebounce, e.logger)
		if err != nil {
			return fmt.Errorf("failed to watch bundle: %w", err)
		}
		defer watcher.Close()
	}

	e.logger.Info().
		Str("version", Version).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Int("rules", registry.Len()).
		Bool("store", e.store != nil).
		Msg("starting formkeeper rule engine")

	errChan := make(chan error, 3)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	var metricsServer *server.MetricsServer
	if cfg.Server.MetricsAddr != "" {
		metricsServer = server.NewMetricsServer(cfg.Server.MetricsAddr, collector.Handler(), e.logger)
		go func() {
			errChan <- metricsServer.Start()
		}()
	}

	if watcher != nil {
		go func() {
			errChan <- watcher.Run(ctx, reloadRules(ctx, e, registry, collector))
		}()
	}

	var runErr error
	select {
	case runErr = <-errChan:
		if runErr == nil {
			runErr = fmt.Errorf("server exited unexpectedly")
		}
	case <-ctx.Done():
		e.logger.Info().Msg("shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := grpcServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// reloadRules validates a changed bundle as a whole, persists it when a store
// is configured, and only then swaps it into the live registry.
func reloadRules(ctx context.Context, e *env, registry *rules.Registry, collector *metrics.Collector) func([]*types.Rule) error {
	return func(changed []*types.Rule) error {
		next, err := rules.NewRegistry(changed...)
		if err != nil {
			return err
		}
		if e.store != nil {
			if err := e.store.ReplaceAll(ctx, next.List()); err != nil {
				return err
			}
		}
		if err := registry.Load(next.List()); err != nil {
			return err
		}
		collector.SetRulesLoaded(registry.Len())
		return nil
	}
}
