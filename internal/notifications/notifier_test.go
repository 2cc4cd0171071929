package notifications

import (
	"context"
	"testing"
	"time"

	"reciapp/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), 1, []byte(`{"type":"claimed"}`)))
	assert.NoError(t, n.PublishCollectors(context.Background(), 0, []byte(`{"type":"created"}`)))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), nil))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "dispatch:user:1"},
		{100, "dispatch:user:100"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_PublishUserRoundTrip(t *testing.T) {
	rdb := newTestRedis(t)

	publisher := NewNotifier(rdb)
	subscriber := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 1)
	require.NoError(t, subscriber.StartPatternSubscriber(ctx, func(channel, payload string) {
		received <- channel
	}))

	event, err := NewWithdrawnEvent("r1").Encode()
	require.NoError(t, err)

	// PSubscribe is asynchronous; retry until the subscription is live.
	assert.Eventually(t, func() bool {
		require.NoError(t, publisher.PublishUser(ctx, 42, event))
		select {
		case ch := <-received:
			assert.Equal(t, "dispatch:user:42", ch)
			return true
		default:
			return false
		}
	}, testEventuallyTimeout, testPollInterval)
}

func TestHub_StartWiringSkipsOwnOrigin(t *testing.T) {
	rdb := newTestRedis(t)

	hub := NewHub()
	local := NewNotifier(rdb)
	remote := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, local))

	collector, err := hub.Register(1, models.RoleCollector, nil)
	require.NoError(t, err)

	event, err := NewCreatedEvent(&models.PickupRequest{ID: "r1", RequesterID: 9}).Encode()
	require.NoError(t, err)

	// A remote instance's publish must reach local sessions.
	assert.Eventually(t, func() bool {
		require.NoError(t, remote.PublishCollectors(ctx, 0, event))
		return len(drain(collector)) > 0
	}, testEventuallyTimeout, testPollInterval)

	// This instance's own publish must not be re-delivered: the dispatcher
	// already pushed it through the hub directly.
	require.NoError(t, local.PublishCollectors(ctx, 0, event))
	assert.Never(t, func() bool {
		return len(drain(collector)) > 0
	}, 200*time.Millisecond, testPollInterval)
}

func TestHub_StartWiringHonorsExclude(t *testing.T) {
	rdb := newTestRedis(t)

	hub := NewHub()
	local := NewNotifier(rdb)
	remote := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, local))

	winner, err := hub.Register(1, models.RoleCollector, nil)
	require.NoError(t, err)
	loser, err := hub.Register(2, models.RoleCollector, nil)
	require.NoError(t, err)

	event, err := NewWithdrawnEvent("r1").Encode()
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		require.NoError(t, remote.PublishCollectors(ctx, 1, event))
		return len(drain(loser)) > 0
	}, testEventuallyTimeout, testPollInterval)
	assert.Empty(t, drain(winner))
}
