package backplane

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeJobEvents(t *testing.T) {
	cfg := Config{JobChannelPrefix: "JobChannel"}
	bp, _, _ := setupTestBackplane(t, cfg)
	ctx := context.Background()

	sub, err := bp.SubscribeJobEvents(ctx, "op")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bp.Queueing(ctx, "op"))

	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		assert.Equal(t, ChangeTypeReset, event.Type)
		assert.Equal(t, "op", event.Reset.Job.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job event")
	}

	// Events for other jobs do not arrive on this channel.
	require.NoError(t, bp.Queueing(ctx, "unrelated"))
	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event for job %s", event.Reset.Job.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeWorkerEvents(t *testing.T) {
	cfg := Config{WorkersHashName: "Workers", WorkerChannel: "WorkerChannel"}
	bp, mr, _ := setupTestBackplane(t, cfg)
	ctx := context.Background()

	sub, err := bp.SubscribeWorkerEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	// A second backplane instance starting against a corrupted hash
	// announces the eviction to existing subscribers.
	mr.HSet(cfg.WorkersHashName, "garbled", "garbled")
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	other, err := New(cfg, "other-instance", nil, nil, func() (redis.UniversalClient, error) {
		return client, nil
	})
	require.NoError(t, err)
	require.NoError(t, other.Start(ctx, "startTime/other:0000"))

	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		assert.Equal(t, ChangeTypeRemove, event.Type)
		assert.Equal(t, "garbled", event.Remove.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker event")
	}
}

func TestSubscriptionSkipsMalformedPayloads(t *testing.T) {
	cfg := Config{JobChannelPrefix: "JobChannel"}
	bp, mr, _ := setupTestBackplane(t, cfg)
	ctx := context.Background()

	sub, err := bp.SubscribeJobEvents(ctx, "op")
	require.NoError(t, err)
	defer sub.Close()

	publisher := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { publisher.Close() })

	require.NoError(t, publisher.Publish(ctx, bp.JobChannel("op"), "not an event").Err())
	require.NoError(t, bp.Queueing(ctx, "op"))

	// The malformed payload surfaces as an error, not an event, and the
	// following good message still arrives.
	select {
	case err := <-sub.Errors():
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription error")
	}

	select {
	case event := <-sub.Events():
		assert.Equal(t, "op", event.Reset.Job.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job event")
	}
}

func TestSubscriptionClose(t *testing.T) {
	cfg := Config{JobChannelPrefix: "JobChannel"}
	bp, _, _ := setupTestBackplane(t, cfg)

	sub, err := bp.SubscribeJobEvents(context.Background(), "op")
	require.NoError(t, err)

	// Close is idempotent and drains the event channel.
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "events channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events channel to close")
	}
}

func TestSubscribeRequiresConfiguredChannels(t *testing.T) {
	bp, _, _ := setupTestBackplane(t, Config{})

	_, err := bp.SubscribeJobEvents(context.Background(), "op")
	assert.Error(t, err)

	_, err = bp.SubscribeWorkerEvents(context.Background())
	assert.Error(t, err)
}
