package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSource struct {
	p     Policy
	err   error
	calls int
}

func (c *countingSource) Snapshot(context.Context) (Policy, error) {
	c.calls++
	return c.p, c.err
}

func TestSettingsRepositorySnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT key, value FROM settings").WillReturnRows(
		sqlmock.NewRows([]string{"key", "value"}).
			AddRow(KeyGeofenceEnabled, "true").
			AddRow(KeyLateThreshold, "20").
			AddRow("unrelated", "x"),
	)

	p, err := NewSettingsRepository(db, zap.NewNop()).Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, p.GeofenceEnabled)
	assert.Equal(t, 20, p.LateThreshold)
	assert.Equal(t, DefaultMinHour, p.MinHour)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	want := Default()
	want.GeofenceEnabled = true
	next := &countingSource{p: want}
	src := NewCachedSource(next, client, time.Minute, zap.NewNop())

	got, err := src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, next.calls)

	mr.FastForward(2 * time.Minute)
	_, err = src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	require.NoError(t, src.Invalidate(ctx))
	_, err = src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCachedSourceFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	next := &countingSource{p: Default()}
	got, err := NewCachedSource(next, client, time.Minute, zap.NewNop()).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
	assert.Equal(t, 1, next.calls)
}

func TestCachedSourcePropagatesLoadError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	boom := errors.New("db down")

	_, err := NewCachedSource(&countingSource{err: boom}, client, time.Minute, zap.NewNop()).Snapshot(context.Background())
	assert.ErrorIs(t, err, boom)
}
