package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	TokenStoreFile   = "file"
	TokenStoreRedis  = "redis"
	TokenStoreMemory = "memory"
)

type Config struct {
	Environment string `toml:"environment"`

	// admin api
	ApiBaseURL        string        `toml:"api_base_url" env:"CUTROOM_API_BASE_URL"`
	RequestTimeout    time.Duration `toml:"request_timeout" env:"CUTROOM_REQUEST_TIMEOUT"`
	LoginPath         string        `toml:"login_path"`
	ExpireOnForbidden bool          `toml:"expire_on_forbidden" env:"CUTROOM_EXPIRE_ON_FORBIDDEN"`
	DashboardCacheTTL time.Duration `toml:"dashboard_cache_ttl"`

	// token store
	TokenStore     string        `toml:"token_store" env:"CUTROOM_TOKEN_STORE"`
	TokenFile      string        `toml:"token_file" env:"CUTROOM_TOKEN_FILE"`
	TokenRedisKey  string        `toml:"token_redis_key"`
	TokenRedisTTL  time.Duration `toml:"token_redis_ttl"`
	RedisHost      string        `toml:"redis_host" env:"CUTROOM_REDIS_HOST"`
	RedisPort      string        `toml:"redis_port" env:"CUTROOM_REDIS_PORT"`
	RedisPassword  string        `toml:"-" env:"CUTROOM_REDIS_PASS"`
	TracingEnabled bool          `toml:"tracing_enabled" env:"HONEYCOMB_ENABLED"`

	// logging
	LogLevel      string `toml:"log_level" env:"CUTROOM_LOG_LEVEL"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`
	SentryDSN     string `toml:"-" env:"SENTRY_DSN"`

	// metrics
	MetricsHost string `toml:"metrics_host"`
	MetricsPort string `toml:"metrics_port"`

	// fake backend
	FakeBackendHost       string        `toml:"fake_backend_host"`
	FakeBackendPort       int           `toml:"fake_backend_port"`
	FakeBackendTokenTTL   time.Duration `toml:"fake_backend_token_ttl"`
	FakeBackendSigningKey string        `toml:"-" env:"CUTROOM_FAKE_SIGNING_KEY"`
	FakeBackendLoginLimit int           `toml:"fake_backend_login_limit"`

	// consecutive failed logins before an account is locked for FakeBackendLockout
	FakeBackendMaxFailedLogins int           `toml:"fake_backend_max_failed_logins"`
	FakeBackendLockout         time.Duration `toml:"fake_backend_lockout"`
	FakeBackendSeed            int64         `toml:"fake_backend_seed"`
	FakeBackendHashCost        int           `toml:"fake_backend_hash_cost"`
	FakeBackendAdminPassword   string        `toml:"-" env:"CUTROOM_FAKE_ADMIN_PASSWORD"`
	FakeBackendAllowedOrigins  []string      `toml:"fake_backend_allowed_origins"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

// Load reads the TOML file, picks the section for env, applies env var
// overrides and defaults, then validates the result.
func Load(env, path string) (*Config, error) {
	var t Toml
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decode toml config %s: %w", path, err)
	}
	return FromToml(&t, env)
}

func FromToml(t *Toml, envName string) (*Config, error) {
	cfg, err := t.Get(envName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] missing", envName)
	}
	cfg.Environment = strings.ToLower(envName)

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.DashboardCacheTTL == 0 {
		c.DashboardCacheTTL = time.Minute
	}
	if c.TokenStore == "" {
		c.TokenStore = TokenStoreFile
	}
	if c.TokenStore == TokenStoreFile && c.TokenFile == "" {
		c.TokenFile = DefaultTokenFile()
	}
	if c.TokenRedisKey == "" {
		c.TokenRedisKey = "cutroom-admin||token"
	}
	if c.RedisPort == "" {
		c.RedisPort = "6379"
	}
	if c.FakeBackendTokenTTL == 0 {
		c.FakeBackendTokenTTL = 12 * time.Hour
	}
	if c.FakeBackendPort == 0 {
		c.FakeBackendPort = 9000
	}
	if c.FakeBackendMaxFailedLogins == 0 {
		c.FakeBackendMaxFailedLogins = 5
	}
	if c.FakeBackendLockout == 0 {
		c.FakeBackendLockout = 15 * time.Minute
	}
	if c.FakeBackendSeed == 0 {
		c.FakeBackendSeed = 42
	}
}

func (c *Config) Validate() error {
	if c.ApiBaseURL == "" {
		return errors.New("api base url not set")
	}
	u, err := url.Parse(c.ApiBaseURL)
	if err != nil {
		return fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base url scheme must be http or https, got [%s]", u.Scheme)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be positive: %s", c.RequestTimeout)
	}

	switch c.TokenStore {
	case TokenStoreFile, TokenStoreMemory:
	case TokenStoreRedis:
		if c.RedisHost == "" {
			return errors.New("redis token store selected, but redis host not set")
		}
	default:
		return fmt.Errorf("unknown token store: %s", c.TokenStore)
	}

	return nil
}

// DefaultTokenFile is where the admin token lives between runs when nothing
// else is configured.
func DefaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "cutroom-admin", "token")
}
