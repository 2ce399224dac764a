//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/janhstrom/mindreminder-sub000/internal/domain"
)

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisStatsCacheRoundTripAndInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewRedisStatsCache(startRedis(t, ctx), time.Minute)

	day := civil.Date{Year: 2025, Month: time.January, Day: 6}
	gen, err := c.Generation(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, gen)

	_, ok, err := c.Get(ctx, "user-1", day, gen)
	require.NoError(t, err)
	require.False(t, ok)

	stats := domain.Stats{TotalActive: 2, CompletedToday: 1, DueToday: 1, CurrentStreaks: []int{3, 0}, WeeklyCompletions: 5}
	require.NoError(t, c.Set(ctx, "user-1", day, gen, stats))
	require.NoError(t, c.Set(ctx, "user-1", day.AddDays(-1), gen, stats))
	require.NoError(t, c.Set(ctx, "user-2", day, 0, stats))

	got, ok, err := c.Get(ctx, "user-1", day, gen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stats, *got)

	require.NoError(t, c.Invalidate(ctx, "user-1"))
	next, err := c.Generation(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, gen+1, next)

	_, ok, err = c.Get(ctx, "user-1", day, next)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = c.Get(ctx, "user-1", day.AddDays(-1), gen)
	require.NoError(t, err)
	require.False(t, ok, "orphaned entries are deleted")

	_, ok, err = c.Get(ctx, "user-2", day, 0)
	require.NoError(t, err)
	require.True(t, ok, "other users keep their entries")
}

func TestRedisStatsCacheDropsSetRacingInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewRedisStatsCache(startRedis(t, ctx), time.Minute)
	day := civil.Date{Year: 2025, Month: time.January, Day: 6}

	gen, err := c.Generation(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "user-1"))
	require.NoError(t, c.Set(ctx, "user-1", day, gen, domain.Stats{TotalActive: 1, CurrentStreaks: []int{}}))

	current, err := c.Generation(ctx, "user-1")
	require.NoError(t, err)
	_, ok, err := c.Get(ctx, "user-1", day, current)
	require.NoError(t, err)
	require.False(t, ok, "stats computed before the invalidation stay invisible")
}
