package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenBucketRefills(t *testing.T) {
	l := NewSimpleTokenBucket(2, 60)
	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	now = now.Add(2 * time.Second)
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisWindow(client, 2)
	now := time.Date(2026, 3, 2, 7, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "request %d", i)
	}

	now = now.Add(time.Minute)
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(l Limiter) int {
		r := gin.New()
		r.GET("/", RateLimit(l, zap.NewNop()), func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return w.Code
	}

	bucket := NewSimpleTokenBucket(1, 1)
	assert.Equal(t, http.StatusOK, serve(bucket))
	assert.Equal(t, http.StatusTooManyRequests, serve(bucket))
	assert.Equal(t, http.StatusOK, serve(failingLimiter{}))
}
