// Command credcored serves the credential engine over HTTP.
//
// Configuration comes from the YAML file named by -config (or CREDCORE_CONFIG)
// and CREDCORE_* environment variables; see package config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/pkg/errors"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/config"
	"github.com/MrEthical07/credcore/internal/httpapi"
	"github.com/MrEthical07/credcore/internal/logging"
	promexport "github.com/MrEthical07/credcore/metrics/export/prometheus"
	"github.com/MrEthical07/credcore/store/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("CREDCORE_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "credcored: %v\n", err)
		var cfgErr *credcore.ConfigError
		if errors.As(err, &cfgErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	builder := credcore.New().
		WithConfig(cfg.Config).
		WithStore(backend.store).
		WithLogger(logger)
	if backend.redis != nil {
		builder = builder.WithRedis(backend.redis)
	}
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(credcore.NewSlogSink(logger.With(slog.String("component", "audit"))))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("credential engine ready",
		slog.String("store", cfg.Store.Driver),
		slog.String("signing_algorithm", report.SigningAlgorithm),
		slog.Bool("legacy_scheme_readable", report.LegacySchemeReadable),
		slog.Bool("login_throttle", report.LoginThrottleActive),
	)
	for _, w := range report.Warnings {
		logger.Warn("security report", slog.String("warning", w))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		promexport.NewCollector(engine),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := httpapi.New(httpapi.Params{
		Service: engine,
		Logger:  logger,
		Config:  cfg.HTTP,
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}

type backend struct {
	store credcore.CredentialStore
	redis redis.UniversalClient
	close func()
}

// openBackend connects the configured credential store. Redis is also
// returned for the postgres driver when a limiter needs it.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "start embedded redis")
		}
		logger.Warn("using in-memory credential store; data is lost on exit", slog.String("addr", mr.Addr()))
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		return &backend{
			store: credcore.NewRedisStore(rdb, cfg.Store.Prefix),
			redis: rdb,
			close: func() {
				_ = rdb.Close()
				mr.Close()
			},
		}, nil

	case config.StoreRedis:
		rdb := newRedis(cfg.Store)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, pkgerrors.Wrapf(err, "ping redis %s", cfg.Store.RedisAddr)
		}
		return &backend{
			store: credcore.NewRedisStore(rdb, cfg.Store.Prefix),
			redis: rdb,
			close: func() { _ = rdb.Close() },
		}, nil

	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "open postgres store")
		}
		b := &backend{store: pg, close: func() { _ = pg.Close() }}
		if cfg.LoginThrottle.Enabled || cfg.PasswordReset.RequestLimit > 0 {
			rdb := newRedis(cfg.Store)
			b.redis = rdb
			b.close = func() {
				_ = rdb.Close()
				_ = pg.Close()
			}
		}
		return b, nil

	default:
		return nil, pkgerrors.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newRedis(cfg config.StoreConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
