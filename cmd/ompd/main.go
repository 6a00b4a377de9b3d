// Command ompd runs the paywall engine as a standalone HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/marcbria/omp"
	audithook "github.com/marcbria/omp/audit_hook"
	"github.com/marcbria/omp/catalog"
	"github.com/marcbria/omp/config"
	"github.com/marcbria/omp/gateway"
	"github.com/marcbria/omp/httpd"
	"github.com/marcbria/omp/observability"
	"github.com/marcbria/omp/store"
	"github.com/marcbria/omp/store/gormstore"
	"github.com/marcbria/omp/store/memory"
	mongostore "github.com/marcbria/omp/store/mongo"
	redisstore "github.com/marcbria/omp/store/redis"
)

func main() {
	configPath := flag.String("config", "omp.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(*configPath, logger); err != nil {
		logger.Error("ompd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	opts := []omp.Option{
		omp.WithLogger(logger),
		omp.WithSweepConfig(cfg.Sweep.AbandonAfter, cfg.Sweep.SweepInterval),
		omp.WithPlugin(audithook.New(slogRecorder(logger))),
	}
	if cfg.Gateway.Provider != "" {
		opts = append(opts, omp.WithProvider(
			gateway.NewHosted(cfg.Gateway.Provider, cfg.Gateway.CheckoutURL, []byte(cfg.Gateway.Secret)),
		))
	}

	var serverOpts []httpd.Option
	if cfg.Server.Metrics {
		registry := prometheus.NewRegistry()
		opts = append(opts, omp.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(registry)),
		))
		serverOpts = append(serverOpts, httpd.WithMetrics(registry))
	}

	cat := catalog.NewMemory()

	pw := omp.New(st, cat, opts...)
	if err := pw.Start(ctx); err != nil {
		return err
	}
	defer pw.Stop()

	server := httpd.New(pw, cat, cfg.Server.LoginURL, logger, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr)
	}()

	logger.Info("ompd listening", "addr", cfg.Server.Addr, "store", cfg.Store.Driver)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.Driver {
	case "memory":
		st = memory.New()
	case "sqlite":
		st, err = gormstore.NewSQLite(cfg.SqlitePath)
	case "postgres":
		st, err = gormstore.NewPostgres(cfg.PostgresDsn)
	case "mongo":
		st, err = mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		st = redisstore.New(st, client)
	}
	return st, nil
}

// slogRecorder routes audit events into the structured log. Deployments
// with a dedicated audit sink swap in their own Recorder.
func slogRecorder(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
			"metadata", evt.Metadata,
		)
		return nil
	})
}
