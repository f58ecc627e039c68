// Package cmd holds the shared startup sequence for service binaries.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/coursereg/internal/platform/config"
	"github.com/louisbranch/coursereg/internal/platform/otel"
)

const defaultOTelShutdownTimeout = 5 * time.Second

// ServiceRegistration names the course registration service in telemetry.
const ServiceRegistration = "registration"

// RunOptions controls shared entrypoint behavior for service commands.
type RunOptions struct {
	// ShutdownTimeout sets the timeout used when stopping telemetry.
	ShutdownTimeout time.Duration
	// Logger receives telemetry shutdown failures. Defaults to zap.L().
	Logger *zap.Logger
}

// ParseConfig loads optional dotenv files and then environment defaults into cfg.
func ParseConfig[T any](cfg *T, dotenv ...string) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnvWithDotEnv(cfg, dotenv...)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// ParseConfigFromArgs loads defaults from env and then parses flags.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	return ParseArgs(fs, args)
}

// RunWithTelemetry configures observability and executes a service run loop.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	return RunWithTelemetryAndOptions(ctx, service, RunOptions{}, run)
}

// RunWithTelemetryAndOptions configures tracing, runs the service loop and
// flushes spans on the way out. A run that ends because ctx was cancelled is a
// clean stop and returns nil.
func RunWithTelemetryAndOptions(ctx context.Context, service string, options RunOptions, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger = logger.With(zap.String("service", service))

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		timeout := options.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultOTelShutdownTimeout
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()

	logger.Info("service starting")
	err = run(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logger.Error("service stopped", zap.Error(err))
		return err
	}
	logger.Info("service stopped")
	return nil
}
