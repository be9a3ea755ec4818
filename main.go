package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"eventinsight/internal/analytics"
	"eventinsight/internal/config"
	"eventinsight/internal/http/handlers"
	appmw "eventinsight/internal/http/middleware"
	"eventinsight/internal/logger"
	"eventinsight/internal/registry"
	"eventinsight/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "eventinsight",
		Short:         "Event ingestion and hourly aggregation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading APP_* variables")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAggregateCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

// withLogger loads config and a logger for the lifetime of fn.
func withLogger(fn func(cfg *config.Config, log *zap.Logger) error) error {
	cfg := config.Load()
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	return fn(cfg, log)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and the recurring aggregation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg, log)
			})
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting eventinsight",
		zap.String("environment", cfg.Environment),
		zap.String("listen_addr", cfg.ListenAddr))

	a, err := newApp(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	var schedOpts []scheduler.Option
	if cfg.AggregationSkipOverlap {
		schedOpts = append(schedOpts, scheduler.WithSkipOverlap())
	}
	sched := scheduler.New(log, schedOpts...)
	runner, err := registry.Lookup[analytics.CycleRunner](a.registry, analytics.CapabilityAggregator)
	if err != nil {
		return err
	}
	err = sched.Schedule(analytics.DefaultJobName, cfg.AggregationInterval, func(ctx context.Context) {
		// Failures are logged by the aggregator and retried at the next firing.
		_, _ = runner.RunCycle(ctx)
	})
	if err != nil {
		return err
	}

	adminAuth, err := appmw.AdminAuth(cfg)
	if err != nil {
		return err
	}

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/v1/track", appmw.Tenant(handlers.TrackHandler(a.gateway, log)))
	r.GET("/v1/metrics", appmw.Tenant(handlers.MetricsHandler(a.gateway, log)))
	r.GET("/v1/summary", appmw.Tenant(handlers.SummaryHandler(a.gateway, log)))
	r.GET("/v1/prometheus", appmw.Tenant(handlers.TenantMetricsHandler(prometheus.DefaultGatherer)))

	r.GET("/metrics", adminAuth(handlers.AdminMetricsHandler(prometheus.DefaultGatherer)))
	r.POST("/admin/aggregate", adminAuth(handlers.AggregateNow(a.registry, log)))

	// Global middleware chain: request logger, then internal reporting, then router
	handler := handlers.RequestLogger(log)(appmw.InternalReporting(a.registry, cfg.InternalTenant, log)(r.Handler))

	server := &fasthttp.Server{
		Handler: handler,
		Name:    "eventinsight",
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("eventinsight listening", zap.String("addr", cfg.ListenAddr))
		serveErr <- server.ListenAndServe(cfg.ListenAddr)
	}()

	sched.Start()

	select {
	case err := <-serveErr:
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = sched.Stop(stopCtx)
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("Aggregation still running at shutdown", zap.Error(err))
	}
	return nil
}

func newAggregateCmd() *cobra.Command {
	var drain bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run aggregation cycles once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				a, err := newApp(cmd.Context(), cfg, log, prometheus.NewRegistry())
				if err != nil {
					return err
				}
				defer a.Close()

				enc := json.NewEncoder(cmd.OutOrStdout())
				for {
					res, err := a.aggregator.RunCycle(cmd.Context())
					if encErr := enc.Encode(res); encErr != nil {
						return encErr
					}
					if err != nil {
						return err
					}
					if !drain || res.Skipped || res.Events == 0 {
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&drain, "drain", false, "repeat cycles until no unprocessed events remain")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(cfg *config.Config, log *zap.Logger) error {
				a, err := newApp(cmd.Context(), cfg, log, prometheus.NewRegistry())
				if err != nil {
					return err
				}
				defer a.Close()
				log.Info("Database schema is up to date")
				return nil
			})
		},
	}
}
