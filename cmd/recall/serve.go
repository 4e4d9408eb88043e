package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/recallkit/recall/config"
	"github.com/recallkit/recall/pkg/api"
	"github.com/recallkit/recall/pkg/api/handlers"
	"github.com/recallkit/recall/pkg/grpc"
	"github.com/recallkit/recall/pkg/jobs"
	"github.com/recallkit/recall/pkg/version"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduler and optional gRPC health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, flags)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, flags *globalFlags) error {
	log := newLogger(cfg)
	log.Info("Starting recall", "version", version.Version, "environment", cfg.App.Environment)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			log.Info("Metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := a.metrics.StartServer(gctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	ws := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	go ws.Run(gctx, a.events)

	healthOpts := handlers.HealthOptions{Embedder: a.embedder, Clients: ws.Clients}
	var sched *jobs.Scheduler
	if cfg.Jobs.Scheduler.Enabled {
		sched, err = jobs.NewScheduler(a.runner, cfg.Jobs.Scheduler, log)
		if err != nil {
			_ = a.close(context.Background())
			return fmt.Errorf("create scheduler: %w", err)
		}
		sched.Start(gctx)
		healthOpts.Scheduler = sched
		log.Info("Scheduler started", "jobs", sched.Scheduled())
	}

	srv := api.NewHTTPServer(cfg, log, &api.Handlers{
		Jobs:     handlers.NewJobsHandler(a.runner, log),
		Chats:    handlers.NewChatHandler(a.store, a.hub, log),
		Memory:   handlers.NewMemoryHandler(a.hub, a.store, log),
		Health:   handlers.NewHealthHandler(a.store, healthOpts),
		Events:   ws,
		Metrics:  a.metrics,
		JobToken: a.token,
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcSrv *grpc.Server
	if cfg.Server.GRPC.Enabled {
		grpcSrv, err = grpc.New(grpc.FromServerConfig(cfg.Server, cfg.Tracing.Enabled),
			grpc.WithStore(a.store),
			grpc.WithLogger(log),
		)
		if err == nil {
			err = grpcSrv.Start()
		}
		if err != nil {
			cancel()
			_ = g.Wait()
			_ = a.close(context.Background())
			return fmt.Errorf("grpc server: %w", err)
		}
	}

	if flags.configPath != "" {
		watcher, err := config.NewWatcher(flags.configPath,
			config.WithOverrides(flags.overrides()),
			config.WithErrorHandler(func(err error) {
				log.Warn("Config reload failed", "error", err)
			}),
		)
		if err != nil {
			log.Warn("Config watcher disabled", "error", err)
		} else {
			watcher.OnChange(a.applyReload)
			go func() {
				if err := watcher.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer func() { _ = watcher.Stop() }()
		}
	}

	<-gctx.Done()
	log.Info("Shutting down")
	start := time.Now()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if grpcSrv != nil {
		if err := grpcSrv.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("grpc shutdown: %w", err))
		}
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	cancel()
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := a.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		log.Error("Shutdown finished with errors", "error", err)
		return err
	}
	log.Info("Shutdown complete", "took", time.Since(start))
	return nil
}
