package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/auth-service/internal/core/port"
	"github.com/arklim/auth-service/internal/infra/config"
	"github.com/arklim/auth-service/internal/infra/database"
	kafkainfra "github.com/arklim/auth-service/internal/infra/kafka"
	redisinfra "github.com/arklim/auth-service/internal/infra/redis"
	"github.com/arklim/auth-service/internal/infra/security"
	"github.com/arklim/auth-service/internal/infra/telemetry"
	postgresrepo "github.com/arklim/auth-service/internal/repository/postgres"
	redisrepo "github.com/arklim/auth-service/internal/repository/redis"
	sqliterepo "github.com/arklim/auth-service/internal/repository/sqlite"
	"github.com/arklim/auth-service/internal/usecase"
)

// Core holds the storage handles and services shared by the API server and the operator CLI.
type Core struct {
	Auth     *usecase.AuthService
	Denylist *usecase.DenylistService
	Redis    *redisinfra.Client
	Database interface{ Ping(ctx context.Context) error }

	closers []func() error
}

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// NewCore connects the credential store, the revocation store and the event
// bus, then assembles the session services on top of them.
func NewCore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, reg prometheus.Registerer) (_ *Core, err error) {
	core := &Core{}
	defer func() {
		if err != nil {
			_ = core.Close()
		}
	}()

	users, err := core.openUserStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	core.Redis = redisClient
	core.closers = append(core.closers, redisClient.Close)

	codec, err := security.NewTokenCodec(security.CodecConfig{
		Secret:    []byte(cfg.JWT.Secret),
		Algorithm: cfg.JWT.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	denylistMetrics, err := telemetry.NewDenylistMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("init denylist metrics: %w", err)
	}

	core.Denylist = usecase.NewDenylistService(
		redisrepo.NewRevocationRepository(redisClient.Redis(), cfg.Redis.DenylistPrefix),
		log,
		usecase.WithDenylistMetrics(denylistMetrics),
	)

	core.Auth, err = usecase.NewAuthService(users, hasher, codec, core.Denylist,
		usecase.WithPasswordPolicy(security.NewPasswordPolicy(security.PasswordPolicyConfig{
			MinLength:           cfg.Password.MinLength,
			MinCharacterClasses: cfg.Password.MinCharacterClasses,
			MinStrengthScore:    cfg.Password.MinStrengthScore,
		})),
		usecase.WithEventPublisher(core.openEventPublisher(cfg, log)),
		usecase.WithAuthLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	return core, nil
}

func (c *Core) openUserStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (port.UserRepository, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		db, err := sqliterepo.Open(ctx, cfg.SQLite.Path, cfg.SQLite.BusyTimeout)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		c.Database = sqlPinger{db: db}

		if cfg.Storage.AutoMigrate {
			if err := sqliterepo.RunMigrations(db); err != nil {
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		log.Info("credential store ready", zap.String("driver", config.StorageDriverSQLite), zap.String("path", cfg.SQLite.Path))
		return sqliterepo.NewUserRepository(db), nil

	case config.StorageDriverPostgres:
		if cfg.Storage.AutoMigrate {
			if err := postgresrepo.RunMigrations(cfg.Postgres.DSN()); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		c.closers = append(c.closers, closePool(pool))
		c.Database = pool
		return postgresrepo.NewUserRepository(pool), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func (c *Core) openEventPublisher(cfg *config.AppConfig, log *zap.Logger) port.EventPublisher {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	c.closers = append(c.closers, producer.Close)
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

// Close releases every handle opened by NewCore, newest first.
func (c *Core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func closePool(pool *pgxpool.Pool) func() error {
	return func() error {
		pool.Close()
		return nil
	}
}
