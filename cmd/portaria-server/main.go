package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/Portaria/server/internal/auditstream"
	"github.com/BrandonDHaskell/Portaria/server/internal/auth"
	"github.com/BrandonDHaskell/Portaria/server/internal/config"
	dbpkg "github.com/BrandonDHaskell/Portaria/server/internal/db"
	"github.com/BrandonDHaskell/Portaria/server/internal/grpcapi"
	"github.com/BrandonDHaskell/Portaria/server/internal/httpapi"
	"github.com/BrandonDHaskell/Portaria/server/internal/logging"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/service"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/statscache"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/gormstore"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/memory"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/store/sqlite"
	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

// stores is the backend chosen at startup plus what it takes to check and
// release it.
type stores struct {
	tokens store.TokenStore
	users  store.UserStore
	audit  store.AuditLogStore
	ping   func(ctx context.Context) error
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("app", "portaria-server")

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Audit fan-out to Kafka is best effort; the database row is the record.
	audit := st.audit
	if len(cfg.KafkaBrokers) > 0 {
		streamed := auditstream.NewStore(st.audit,
			auditstream.NewWriter(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger), logger)
		defer streamed.Close()
		audit = streamed
		logger.Info("audit stream enabled", "topic", cfg.KafkaAuditTopic)
	}

	var cache service.StatsCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		cache = statscache.New(rdb, time.Duration(cfg.StatsTTLSeconds)*time.Second)
		logger.Info("stats cache enabled", "addr", cfg.RedisAddr)
	}

	sessions, err := auth.NewManager(cfg.SessionSecret, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}

	opts := []service.Option{service.WithLogger(logger)}
	issuer := service.NewIssuer(st.tokens, opts...)
	validator := service.NewValidator(st.tokens, st.users, audit, opts...)
	stats := service.NewStatsService(st.tokens, audit, cache, opts...)
	users := service.NewUserService(st.users, opts...)

	if err := bootstrapAccounts(ctx, cfg, users, logger); err != nil {
		return err
	}

	pruner := service.NewTokenPruner(st.tokens, service.PrunerConfig{
		RetentionDays: cfg.TokenRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, opts...)
	pruner.Start(ctx)
	defer pruner.Stop()

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		health := grpcapi.New(st.ping, logger)
		defer health.Stop()

		go health.Watch(ctx, 15*time.Second)
		go func() {
			logger.Info("grpc health listening", "addr", cfg.GRPCAddr)
			if err := health.Serve(lis); err != nil {
				logger.Error("grpc server error", "err", err)
				stop()
			}
		}()
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger,
		Addr:              cfg.HTTPAddr,
		Sessions:          sessions,
		Users:             users,
		Issuer:            issuer,
		Validator:         validator,
		Stats:             stats,
		SelfTokenDuration: time.Duration(cfg.SelfTokenSeconds) * time.Second,
	})

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "store", cfg.Store, "env", cfg.Env)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; nothing survives a restart")
		return stores{
			tokens: memory.NewTokenStore(),
			users:  memory.NewUserStore(),
			audit:  memory.NewAuditLogStore(),
			close:  func() {},
		}, nil

	case config.StoreSQLite:
		conn, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite: %w", err)
		}
		writer := dbpkg.NewWorker(conn)
		return stores{
			tokens: sqlite.NewTokenStore(conn, writer),
			users:  sqlite.NewUserStore(conn, writer),
			audit:  sqlite.NewAuditLogStore(conn, writer),
			ping:   conn.PingContext,
			close: func() {
				writer.Close()
				_ = conn.Close()
			},
		}, nil

	case config.StorePostgres:
		gdb, err := gormstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return stores{}, fmt.Errorf("postgres handle: %w", err)
		}
		return stores{
			tokens: gormstore.NewTokenStore(gdb),
			users:  gormstore.NewUserStore(gdb),
			audit:  gormstore.NewAuditLogStore(gdb),
			ping:   sqlDB.PingContext,
			close:  func() { _ = sqlDB.Close() },
		}, nil
	}
	return stores{}, fmt.Errorf("unknown store %q", cfg.Store)
}

// bootstrapAccounts makes sure somebody can log in on a fresh backend. Dev
// also gets a porter sharing the admin password.
func bootstrapAccounts(ctx context.Context, cfg config.Config, users *service.UserService, logger *slog.Logger) error {
	if cfg.BootstrapAdminPassword == "" {
		logger.Warn("no bootstrap admin password configured; skipping account bootstrap")
		return nil
	}

	created, err := users.EnsureAdmin(ctx, cfg.BootstrapAdminLogin, cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info("bootstrap admin created", "login", cfg.BootstrapAdminLogin)
	}

	if cfg.Env != "dev" {
		return nil
	}
	if _, err := users.EnsureUser(ctx, types.CreateUserRequest{
		Login:     "porter",
		Password:  cfg.BootstrapAdminPassword,
		FirstName: "Dev",
		LastName:  "Porter",
		JobTitle:  "Porteiro",
	}); err != nil {
		return fmt.Errorf("bootstrap porter: %w", err)
	}
	return nil
}
