// Package server wires the registration runtime: event store, bus,
// projection, command engine, HTTP API and gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	platformgrpc "github.com/louisbranch/coursereg/internal/platform/grpc"
	"github.com/louisbranch/coursereg/internal/platform/logging"
	"github.com/louisbranch/coursereg/internal/platform/telemetry/metrics"
	"github.com/louisbranch/coursereg/internal/platform/timeouts"
	"github.com/louisbranch/coursereg/internal/services/registration/api/httpapi"
	"github.com/louisbranch/coursereg/internal/services/registration/bus"
	"github.com/louisbranch/coursereg/internal/services/registration/engine"
	"github.com/louisbranch/coursereg/internal/services/registration/projection"
	"github.com/louisbranch/coursereg/internal/services/registration/storage"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/memory"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/postgres"
	redisstore "github.com/louisbranch/coursereg/internal/services/registration/storage/redis"
	"github.com/louisbranch/coursereg/internal/services/registration/storage/sqlite"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// HealthService is the gRPC health service name reported when ready.
const HealthService = "coursereg.registration"

// Options configures the runtime.
type Options struct {
	HTTPAddr   string
	HealthAddr string

	StoreBackend string
	SQLitePath   string
	PostgresDSN  string
	RedisAddr    string
	RedisPrefix  string

	BusBackend   string
	RedisChannel string

	Logger *zap.Logger
}

// Server hosts the registration HTTP API and health endpoint.
type Server struct {
	logger      *zap.Logger
	listener    net.Listener
	httpServer  *http.Server
	health      *platformgrpc.HealthServer
	redisBus    *bus.Redis
	enrollments *projection.Enrollments
	closers     []func() error
}

// New opens every dependency and binds both listeners.
func New(ctx context.Context, opts Options) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.OrNop(opts.Logger)
	s := &Server{logger: logger}

	store, err := s.openStore(ctx, opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	events, err := s.openBus(ctx, opts)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.enrollments = projection.NewEnrollments()
	events.Subscribe(s.enrollments.Handle)

	recorder := metrics.New()
	repo := engine.Repository{Store: store, Logger: logger.Named("repository"), Metrics: recorder}
	handler := engine.Handler{
		Sessions: repo,
		Store:    store,
		Bus:      events,
		Logger:   logger.Named("engine"),
		Metrics:  recorder,
	}
	api := httpapi.NewServer(httpapi.Config{
		Commands:    handler,
		Sessions:    repo,
		Enrollments: s.enrollments,
		Logger:      logger.Named("http"),
		Metrics:     recorder,
	})

	listener, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("listen on %s: %w", opts.HTTPAddr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	if strings.TrimSpace(opts.HealthAddr) != "" {
		health, err := platformgrpc.NewHealthServer(opts.HealthAddr, logger.Named("health"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.health = health
	}
	return s, nil
}

func (s *Server) openStore(ctx context.Context, opts Options) (storage.EventStore, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.StoreBackend))
	connectCtx, cancel := context.WithTimeout(ctx, timeouts.StoreConnect)
	defer cancel()

	switch backend {
	case "", StoreMemory:
		return memory.New(), nil
	case StoreSQLite:
		path := opts.SQLitePath
		if strings.TrimSpace(path) == "" {
			path = filepath.Join("data", "registration.db")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := sqlite.Open(connectCtx, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite event store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	case StorePostgres:
		store, err := postgres.Open(connectCtx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres event store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	case StoreRedis:
		store, err := redisstore.Open(connectCtx, opts.RedisAddr, opts.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis event store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.StoreBackend)
	}
}

func (s *Server) openBus(ctx context.Context, opts Options) (bus.Bus, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.BusBackend))
	switch backend {
	case "", BusMemory:
		return bus.NewMemory(s.logger), nil
	case BusRedis:
		connectCtx, cancel := context.WithTimeout(ctx, timeouts.StoreConnect)
		defer cancel()
		b, err := bus.OpenRedis(connectCtx, opts.RedisAddr, opts.RedisChannel, s.logger)
		if err != nil {
			return nil, fmt.Errorf("open redis bus: %w", err)
		}
		s.redisBus = b
		s.closers = append(s.closers, b.Close)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", opts.BusBackend)
	}
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HealthAddr returns the gRPC health listener address, if enabled.
func (s *Server) HealthAddr() string {
	if s == nil {
		return ""
	}
	return s.health.Addr()
}

// Run creates and serves a registration server until ctx ends.
func Run(ctx context.Context, opts Options) error {
	srv, err := New(ctx, opts)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve runs the HTTP and health servers until ctx ends or either fails.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	if s.redisBus != nil {
		if err := s.redisBus.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		s.logger.Info("registration http listening", zap.String("addr", s.Addr()))
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return nil
	})
	if s.health != nil {
		s.health.SetServing("", true)
		s.health.SetServing(HealthService, true)
		g.Go(func() error {
			return s.health.Serve(gctx)
		})
	}
	return g.Wait()
}

// Close releases every resource. It is safe to call more than once.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close dependency", zap.Error(err))
		}
	}
	s.closers = nil
}
