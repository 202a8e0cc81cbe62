package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBroker(client, ""), mr
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	broker, _ := setupTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	sent := Event{
		Type:       ResourceCreated,
		ResourceID: 42,
		Name:       "GitHub",
		URL:        "https://github.com/",
		ActorID:    "actor",
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, broker.Publish(ctx, sent))

	select {
	case got := <-ch:
		assert.Equal(t, sent.Type, got.Type)
		assert.Equal(t, sent.ResourceID, got.ResourceID)
		assert.Equal(t, sent.Name, got.Name)
		assert.True(t, sent.Timestamp.Equal(got.Timestamp))
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestRedisBroker_SkipsMalformedPayload(t *testing.T) {
	broker, mr := setupTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	mr.Publish(DefaultChannel, "not-json")
	require.NoError(t, broker.Publish(ctx, Event{Type: ResourceDeleted, ResourceID: 3}))

	select {
	case got := <-ch:
		assert.Equal(t, ResourceDeleted, got.Type)
		assert.Equal(t, uint64(3), got.ResourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestRedisBroker_ChannelClosesOnCancel(t *testing.T) {
	broker, _ := setupTestBroker(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := broker.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed")
	}
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Event{Type: ResourceCreated}))
}
