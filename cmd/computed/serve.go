package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"

	compute "github.com/zhengren252/ntn-sub004"
	"github.com/zhengren252/ntn-sub004/engine"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker, the workers and maintenance in one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				cfg.WorkerCount = workers
			}
			return run(cmd.Context(), cfg, engine.WithRoles(engine.RoleAll))
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of in-process workers (overrides worker_count)")
	return cmd
}

func newBrokerCmd(flags *rootFlags) *cobra.Command {
	var maintenance bool
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run only the broker, for workers in other processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			roles := engine.RoleBroker
			if maintenance {
				roles |= engine.RoleMaintenance
			}
			return run(cmd.Context(), cfg, engine.WithRoles(roles))
		},
	}
	cmd.Flags().BoolVar(&maintenance, "maintenance", true, "also run the cleanup and snapshot jobs")
	return cmd
}

func newWorkerCmd(flags *rootFlags) *cobra.Command {
	var (
		ids       []string
		count     int
		brokerURL string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run workers against a broker backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if count > 0 {
				cfg.WorkerCount = count
			}
			if brokerURL == "" {
				brokerURL = "ws://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.BackendPort)) + "/"
			}
			opts := []engine.Option{
				engine.WithRoles(engine.RoleWorkers),
				engine.WithBrokerURL(brokerURL),
			}
			if len(ids) > 0 {
				opts = append(opts, engine.WithWorkerIDs(ids...))
			}
			return run(cmd.Context(), cfg, opts...)
		},
	}
	cmd.Flags().StringSliceVar(&ids, "id", nil, "fixed worker identity; repeat for several workers")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of workers when --id is not given (default worker_count)")
	cmd.Flags().StringVar(&brokerURL, "broker", "", "broker backend URL (default ws://host:backend_port/)")
	return cmd
}

// run builds an engine for cfg and blocks until ctx is canceled.
func run(ctx context.Context, fc fileConfig, opts ...engine.Option) error {
	logger, err := newLogger(fc.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if fc.Profiling.ServerAddress != "" {
		profiler, err := startProfiler(fc.Profiling, logger)
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	eng, err := buildEngine(ctx, fc.Config, logger, opts...)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		_ = eng.Stop(context.WithoutCancel(ctx))
		return fmt.Errorf("start: %w", err)
	}
	if url := eng.FrontendURL(); url != "" {
		logger.Info("compute backend ready",
			slog.String("frontend", url),
			slog.String("backend", eng.Broker().BackendURL()),
		)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fc.ShutdownTimeout)
	defer cancel()
	return eng.Stop(stopCtx)
}

func buildEngine(ctx context.Context, cfg compute.Config, logger *slog.Logger, opts ...engine.Option) (*engine.Engine, error) {
	backendOpts, err := engine.OpenBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc, err := compute.New(append(backendOpts,
		compute.WithConfig(cfg),
		compute.WithLogger(logger),
	)...)
	if err != nil {
		return nil, err
	}
	eng, err := engine.Build(svc, opts...)
	if err != nil {
		_ = svc.Stop(ctx)
		return nil, err
	}
	return eng, nil
}

func startProfiler(cfg profilingConfig, logger *slog.Logger) (*pyroscope.Profiler, error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags:            cfg.Tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pyroscope: %w", err)
	}
	logger.Info("continuous profiling enabled", slog.String("server", cfg.ServerAddress))
	return profiler, nil
}
