// Package registration parses registration service flags and launches the
// service.
package registration

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	entrypoint "github.com/louisbranch/coursereg/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/coursereg/internal/platform/grpc"
	"github.com/louisbranch/coursereg/internal/platform/logging"
	"github.com/louisbranch/coursereg/internal/platform/timeouts"
	server "github.com/louisbranch/coursereg/internal/services/registration/app"
)

// Config holds registration command configuration.
type Config struct {
	HTTPAddr   string `env:"COURSEREG_HTTP_ADDR" envDefault:":8080"`
	HealthAddr string `env:"COURSEREG_HEALTH_ADDR" envDefault:":8081"`

	Store       string `env:"COURSEREG_STORE" envDefault:"memory"`
	SQLitePath  string `env:"COURSEREG_SQLITE_PATH" envDefault:"data/registration.db"`
	PostgresDSN string `env:"COURSEREG_POSTGRES_DSN"`
	RedisAddr   string `env:"COURSEREG_REDIS_ADDR"`
	RedisPrefix string `env:"COURSEREG_REDIS_PREFIX"`

	Bus          string `env:"COURSEREG_BUS" envDefault:"memory"`
	RedisChannel string `env:"COURSEREG_REDIS_CHANNEL"`

	LogLevel  string `env:"COURSEREG_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"COURSEREG_LOG_FORMAT" envDefault:"json"`
	LogDev    bool   `env:"COURSEREG_LOG_DEVELOPMENT"`

	// HealthCheck probes a running instance instead of starting one.
	HealthCheck bool
}

// ParseConfig parses .env, environment and flags into Config, in increasing
// precedence.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg, ".env"); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The registration HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "The gRPC health listen address (empty disables it)")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "Event store backend: memory, sqlite, postgres or redis")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite event store path")
	fs.StringVar(&cfg.Bus, "bus", cfg.Bus, "Event bus backend: memory or redis")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or console")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Probe the gRPC health endpoint and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Development: cfg.LogDev,
		Format:      cfg.LogFormat,
		Level:       cfg.LogLevel,
	})
}

// Run starts the registration service, or probes one when HealthCheck is set.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) error {
	if cfg.HealthCheck {
		if err := platformgrpc.Probe(ctx, probeAddr(cfg.HealthAddr), server.HealthService, timeouts.HealthProbe, logger); err != nil {
			return fmt.Errorf("health check: %w", err)
		}
		return nil
	}
	opts := server.Options{
		HTTPAddr:     cfg.HTTPAddr,
		HealthAddr:   cfg.HealthAddr,
		StoreBackend: cfg.Store,
		SQLitePath:   cfg.SQLitePath,
		PostgresDSN:  cfg.PostgresDSN,
		RedisAddr:    cfg.RedisAddr,
		RedisPrefix:  cfg.RedisPrefix,
		BusBackend:   cfg.Bus,
		RedisChannel: cfg.RedisChannel,
		Logger:       logger,
	}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceRegistration, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return server.Run(ctx, opts)
	})
}

// probeAddr turns a listen address such as ":8081" into a dialable one.
func probeAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
