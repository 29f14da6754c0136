package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2beens/cutroom-admin/internal/config"
	"github.com/2beens/cutroom-admin/internal/fakeapi"
	"github.com/2beens/cutroom-admin/internal/logging"
	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/internal/telemetry/tracing"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const devAdminPassword = "cutroom-dev-password"

func main() {
	fmt.Println("starting fake admin api ...")

	env := flag.String("env", "development", "environment [prod | production | dev | development]")
	configPath := flag.String("config", "./config.toml", "path for the TOML config file")
	usersCount := flag.Int("users", fakeapi.DefaultSeedUsers, "number of generated marketplace users")
	ordersCount := flag.Int("orders", fakeapi.DefaultSeedOrders, "number of generated orders")
	flag.Parse()

	log.Warnf("---->> running in [%s] environment", *env)

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		panic(err)
	}

	logCloser := logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    false,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        cfg.SentryDSN,
		SentryServerName: "cutroom-fake-backend",
	})
	defer logCloser.Close()

	adminPassword := cfg.FakeBackendAdminPassword
	if adminPassword == "" {
		log.Warnf("admin password not set, use CUTROOM_FAKE_ADMIN_PASSWORD to set it. using [%s]", devAdminPassword)
		adminPassword = devAdminPassword
	}

	var redisClient *redis.Client
	if cfg.RedisHost != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       0,
		})
	} else {
		log.Debugln("redis host not set, login rate limiting disabled")
	}

	otelShutdown, err := tracing.HoneycombSetup(cfg.TracingEnabled, "cutroom-fake-backend", redisClient)
	if err != nil {
		log.Fatalf("setup tracing: %s", err)
	}
	defer otelShutdown()

	promRegistry := metrics.SetupPrometheus()
	metricsManager := metrics.NewManager("cutroom", "fakeapi", promRegistry)

	server, err := fakeapi.NewServer(fakeapi.NewServerParams{
		Config:         cfg,
		Accounts:       fakeapi.DefaultAccounts(adminPassword),
		RedisClient:    redisClient,
		MetricsManager: metricsManager,
		PromRegistry:   promRegistry,
		UsersCount:     *usersCount,
		OrdersCount:    *ordersCount,
	})
	if err != nil {
		log.Fatalf("new fake api server: %s", err)
	}

	metricsAddr := ""
	if cfg.MetricsPort != "" {
		metricsAddr = net.JoinHostPort(cfg.MetricsHost, cfg.MetricsPort)
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	server.Serve(cfg.FakeBackendHost, cfg.FakeBackendPort, metricsAddr)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, shutting down ...", receivedSig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.GracefulShutdown(ctx); err != nil {
		log.Errorf("graceful shutdown: %s", err)
	}
}
