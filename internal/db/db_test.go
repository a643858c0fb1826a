package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolConfig(t *testing.T) {
	cfg, err := PoolConfig("postgres://u:p@localhost:5432/sentinelsky?sslmode=disable", 20)
	require.NoError(t, err)
	require.EqualValues(t, 20, cfg.MaxConns)
	require.EqualValues(t, minPoolConns, cfg.MinConns)
	require.Equal(t, "sentinelsky", cfg.ConnConfig.Database)

	cfg, err = PoolConfig("postgres://u:p@localhost:5432/sentinelsky", 1)
	require.NoError(t, err)
	require.EqualValues(t, minPoolConns, cfg.MaxConns)

	_, err = PoolConfig("postgres://u:p@localhost:notaport/x", 5)
	require.Error(t, err)
}

func TestClose_NilPool(t *testing.T) {
	require.NotPanics(t, func() { Close(nil) })
}
