package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(2)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeDeliverNotification, Body: []byte("n-1")}))
	assert.Equal(t, 1, q.Len())

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, TypeDeliverNotification, msg.Type)
	assert.Equal(t, "n-1", string(msg.Body))

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestInMemoryPublishFullHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{Type: "b"})
	assert.ErrorIs(t, err, ErrFull)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:queue")
	q.block = 100 * time.Millisecond

	require.NoError(t, q.Publish(ctx, Message{Type: TypeDeliverNotification, Body: []byte("n-1|x")}))
	require.NoError(t, q.Publish(ctx, Message{Type: TypeDeliverNotification, Body: []byte("n-2")}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "n-1|x", string(receive(t, ch).Body))
	assert.Equal(t, "n-2", string(receive(t, ch).Body))
}

func TestRedisQueueSkipsGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:queue")
	q.block = 100 * time.Millisecond
	_, err := mr.Lpush("test:queue", "not json")
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, Message{Type: TypeDeliverNotification, Body: []byte("ok")}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(receive(t, ch).Body))
}
