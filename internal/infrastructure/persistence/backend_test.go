package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub-backend/config"
)

func TestOpen_InMemoryWithoutDatabaseURL(t *testing.T) {
	b, err := Open(context.Background(), Options{}, nil)
	require.NoError(t, err)
	defer b.Close()

	require.NotNil(t, b.Memory)
	assert.Nil(t, b.DB)
	assert.Nil(t, b.Cache)
	assert.Nil(t, b.LeaderboardCache())

	ctx := context.Background()
	require.NoError(t, b.Ledger.EnsureAccount(ctx, "u1"))
	acc, err := b.Ledger.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, acc.Level)

	entries, err := b.Source.TopEntries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpen_UnreachablePostgresFails(t *testing.T) {
	opts := Options{ConnectAttempts: 1}
	opts.Postgres.URL = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"

	_, err := Open(context.Background(), opts, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect postgres")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: "postgres://x", MaxConns: 7, ConnectAttempts: 2},
		Redis:    config.RedisConfig{Host: "cache", Port: 6380, KeyPrefix: "t:"},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, "postgres://x", opts.Postgres.URL)
	assert.Equal(t, int32(7), opts.Postgres.MaxConns)
	assert.Equal(t, 2, opts.ConnectAttempts)
	require.NotNil(t, opts.Redis)
	assert.Equal(t, "cache:6380", opts.Redis.Addr())

	cfg.Redis.Disabled = true
	assert.Nil(t, OptionsFromConfig(cfg).Redis)
}
