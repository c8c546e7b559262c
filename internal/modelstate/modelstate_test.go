package modelstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/opensuperagent/superagent/internal/config"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	want := Selection{API: "anthropic", Model: "claude-sonnet-4-20250514", UpdatedAt: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, s.Set(ctx, want))

	got, ok, err := s.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
	require.NoError(t, s.Close())
}

func TestMemory(t *testing.T) {
	testStore(t, &Memory{})
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	testStore(t, s)
	require.True(t, mr.Exists(RedisKey))
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := New(context.Background(), config.Config{})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	var cfg config.Config
	cfg.ModelStore = config.ModelStoreRedis
	cfg.RedisURL = "redis://" + mr.Addr()
	s, err = New(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &Redis{}, s)

	cfg.RedisURL = "://bad"
	_, err = New(context.Background(), cfg)
	require.ErrorContains(t, err, "parse redis url")

	cfg.ModelStore = "disk"
	_, err = New(context.Background(), cfg)
	require.EqualError(t, err, `unknown model store "disk"`)
}
