package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/models"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(client, DefaultConfig(), clockwork.NewRealClock())
}

func startEvent(endsAt int64) models.ArenaEvent {
	return models.ArenaEvent{
		Type:     models.WireTypeArenaPop,
		EndsAt:   &endsAt,
		Duration: 10,
		ServerTS: endsAt - 10_000,
	}
}

func TestPutOverwritesCurrent(t *testing.T) {
	mr, store := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "dev:abc", startEvent(1_000)))
	require.NoError(t, store.Put(ctx, "dev:abc", models.ArenaEvent{Type: models.WireTypeArenaStop, ServerTS: 2_000}))

	raw, err := mr.Get("arena_events:dev_abc:current")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, models.WireTypeArenaStop, got["type"])
	assert.NotContains(t, got, "endsAt")
}

func TestPutRejectsInvalidChannel(t *testing.T) {
	_, store := setupMiniRedis(t)

	err := store.Put(context.Background(), "bad id/with slash", startEvent(1))
	assert.ErrorIs(t, err, channel.ErrInvalidChannelID)
}

func TestCurrentEmpty(t *testing.T) {
	_, store := setupMiniRedis(t)

	data, err := store.Current(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestWatchDeliversCurrentThenUpdates(t *testing.T) {
	_, store := setupMiniRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.Put(ctx, "chan1", startEvent(5_000)))

	values := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, "chan1", nil, func(data []byte) { values <- data })
	}()

	select {
	case v := <-values:
		assert.Contains(t, string(v), `"endsAt":5000`)
	case <-time.After(2 * time.Second):
		t.Fatal("initial value not delivered")
	}

	require.NoError(t, store.Put(ctx, "chan1", models.ArenaEvent{Type: models.WireTypeArenaStop}))
	select {
	case v := <-values:
		assert.Contains(t, string(v), models.WireTypeArenaStop)
	case <-time.After(2 * time.Second):
		t.Fatal("update not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestWatchReportsLostSubscription(t *testing.T) {
	mr, store := setupMiniRedis(t)

	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(context.Background(), "chan1", func() { close(ready) }, func([]byte) {})
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never established")
	}

	mr.Close()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, channel.ErrSubscriptionLost), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not fail after server shutdown")
	}
}

func TestServerTimeUsesRedisClock(t *testing.T) {
	mr, store := setupMiniRedis(t)

	serverNow := time.Now().Add(90 * time.Second).Truncate(time.Microsecond)
	mr.SetTime(serverNow)

	sample, err := store.ServerTime(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, serverNow, sample.Server, time.Millisecond)
	assert.InDelta(t, float64(90*time.Second), float64(sample.Offset()), float64(time.Second))
}
