package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/cutroom-admin/internal/config"
	"github.com/2beens/cutroom-admin/internal/middleware"
	"github.com/2beens/cutroom-admin/internal/telemetry/metrics"
	"github.com/2beens/cutroom-admin/pkg"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/multierr"
)

// Server is a stand-in for the marketplace admin api, good enough to develop
// and test the admin client against.
type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	accounts    *AccountStore
	tokens      *TokenIssuer
	data        *DataStore
	redisClient *redis.Client

	loginLimitPerMin int
	allowedOrigins   []string

	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
}

type NewServerParams struct {
	Config   *config.Config
	Accounts []SeedAccount
	// RedisClient enables the login rate limiter when set.
	RedisClient    *redis.Client
	MetricsManager *metrics.Manager
	PromRegistry   *prometheus.Registry
	UsersCount     int
	OrdersCount    int
}

func NewServer(params NewServerParams) (*Server, error) {
	cfg := params.Config
	if cfg == nil {
		return nil, errors.New("config not set")
	}

	signingKey := cfg.FakeBackendSigningKey
	if signingKey == "" {
		log.Warnln("fake backend signing key not set, issued tokens will not survive a restart")
		randomKey, err := pkg.GenerateRandomString(32)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		signingKey = randomKey
	}
	tokens, err := NewTokenIssuer([]byte(signingKey), cfg.FakeBackendTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("new token issuer: %w", err)
	}

	accounts := NewAccountStore(cfg.FakeBackendMaxFailedLogins, cfg.FakeBackendLockout, cfg.FakeBackendHashCost)
	for _, seed := range params.Accounts {
		if err := accounts.Add(seed); err != nil {
			return nil, fmt.Errorf("add account: %w", err)
		}
	}

	usersCount, ordersCount := params.UsersCount, params.OrdersCount
	if usersCount <= 0 {
		usersCount = DefaultSeedUsers
	}
	if ordersCount <= 0 {
		ordersCount = DefaultSeedOrders
	}

	metricsManager := params.MetricsManager
	if metricsManager == nil {
		metricsManager = metrics.NewTestManager()
	}

	return &Server{
		accounts:         accounts,
		tokens:           tokens,
		data:             NewDataStore(cfg.FakeBackendSeed, usersCount, ordersCount),
		redisClient:      params.RedisClient,
		loginLimitPerMin: cfg.FakeBackendLoginLimit,
		allowedOrigins:   cfg.FakeBackendAllowedOrigins,
		metricsManager:   metricsManager,
		promRegistry:     params.PromRegistry,
	}, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("fake-admin-api"))

	var rateLimiter middleware.RequestRateLimiter
	if s.redisClient != nil {
		rateLimiter = redis_rate.NewLimiter(s.redisClient)
	}

	authHandler := NewAuthHandler(s.accounts, s.tokens)
	authHandler.SetupRoutes(r, rateLimiter, s.loginLimitPerMin, s.metricsManager)

	dataHandler := NewDataHandler(s.data, s.accounts)
	dataHandler.SetupRoutes(r, s.tokens)

	// answered by the cors middleware. A matcher func rather than Methods, so a
	// non-OPTIONS miss stays a 404 instead of becoming a method mismatch.
	r.MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return req.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Name("preflight")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.allowedOrigins))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

// Serve starts the api and, when metricsAddr is not empty, the prometheus
// endpoint. It does not block.
func (s *Server) Serve(host string, port int, metricsAddr string) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      s.Router(),
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	go func() {
		log.Infof(" > fake admin api listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("fake admin api, listen and serve: %s", err)
		}
	}()

	if metricsAddr == "" || s.promRegistry == nil {
		return
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}
	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()
}

func (s *Server) GracefulShutdown(ctx context.Context) error {
	log.Debug("graceful shutdown initiated ...")

	var err error
	if s.httpServer != nil {
		err = multierr.Append(err, s.httpServer.Shutdown(ctx))
		log.Warnln("fake admin api shut down")
	}
	if s.metricsHttpServer != nil {
		err = multierr.Append(err, s.metricsHttpServer.Shutdown(ctx))
		log.Warnln("metrics server shut down")
	}
	if s.redisClient != nil {
		err = multierr.Append(err, s.redisClient.Close())
	}
	return err
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed, http.StateHijacked:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
