package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2beens/cutroom-admin/internal/config"
	"github.com/2beens/cutroom-admin/internal/logging"
	"github.com/2beens/cutroom-admin/internal/session"
	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"
	"github.com/2beens/cutroom-admin/internal/tokenstore"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// tokenStore is what the admin shell needs from a token backend.
type tokenStore interface {
	session.TokenStore
	io.Closer
}

func main() {
	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	interactive := flag.Bool("i", false, "start an interactive shell instead of running a single command")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %s\n", err)
		os.Exit(2)
	}

	logCloser := logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        cfg.SentryDSN,
		SentryServerName: "cutroom-admin",
	})

	if err := run(cfg, *interactive, flag.Args()); err != nil {
		log.Errorf("cutroom-admin: %s", err)
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		_ = logCloser.Close()
		os.Exit(1)
	}
	_ = logCloser.Close()
}

func run(cfg *config.Config, interactive bool, args []string) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.TokenStore == config.TokenStoreRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       0,
		})
	}

	otelShutdown, err := tracing.HoneycombSetup(cfg.TracingEnabled, "cutroom-admin", redisClient)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer otelShutdown()

	store, err := newTokenStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("cutroom", "admin", promRegistry)
	if interactive && cfg.MetricsPort != "" {
		metricsServer := serveMetrics(net.JoinHostPort(cfg.MetricsHost, cfg.MetricsPort), promRegistry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = multierr.Append(err, metricsServer.Shutdown(shutdownCtx))
		}()
	}

	sessionManager, err := session.NewManager(session.NewManagerParams{
		BaseURL:           cfg.ApiBaseURL,
		Store:             store,
		RequestTimeout:    cfg.RequestTimeout,
		LoginPath:         cfg.LoginPath,
		ExpireOnForbidden: cfg.ExpireOnForbidden,
		Metrics:           metricsManager,
	})
	if err != nil {
		return fmt.Errorf("new session manager: %w", err)
	}

	app := NewApp(sessionManager, cfg.DashboardCacheTTL, os.Stdin, os.Stdout)

	if err := sessionManager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	log.Debugf("session initialized: %s", sessionManager.Status())

	if interactive {
		return app.Shell(ctx)
	}
	if err := app.Run(ctx, args); err != nil {
		if errors.Is(err, errUsage) {
			_ = app.printHelp()
		}
		return err
	}
	return nil
}

func newTokenStore(cfg *config.Config, redisClient *redis.Client) (tokenStore, error) {
	switch cfg.TokenStore {
	case config.TokenStoreRedis:
		log.Debugf("using redis token store at %s:%s", cfg.RedisHost, cfg.RedisPort)
		return tokenstore.NewRedisStore(redisClient, cfg.TokenRedisKey, cfg.TokenRedisTTL), nil
	case config.TokenStoreMemory:
		log.Debugln("using in-memory token store, the session will not survive a restart")
		return tokenstore.NewMemoryStore(), nil
	default:
		store, err := tokenstore.NewFileStore(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("open token file: %w", err)
		}
		log.Debugf("using token file [%s]", store.Path())
		return store, nil
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Debugf("metrics available at %s/metrics", addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %s", err)
		}
	}()
	return metricsServer
}
