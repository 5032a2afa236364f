package database

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/arklim/auth-service/internal/infra/config"
)

func TestApplyPoolLimits(t *testing.T) {
	cfg := config.PostgresSettings{
		Host:            "localhost",
		Port:            5432,
		User:            "auth",
		Password:        "secret",
		Database:        "auth",
		SSLMode:         "disable",
		MaxConns:        20,
		MinConns:        4,
		MaxConnLifetime: time.Hour,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)
	defaultIdle := poolConfig.MaxConnIdleTime

	applyPoolLimits(poolConfig, cfg)

	require.Equal(t, int32(20), poolConfig.MaxConns)
	require.Equal(t, int32(4), poolConfig.MinConns)
	require.Equal(t, time.Hour, poolConfig.MaxConnLifetime)
	require.Equal(t, defaultIdle, poolConfig.MaxConnIdleTime)
	require.Equal(t, "auth", poolConfig.ConnConfig.Database)
}
