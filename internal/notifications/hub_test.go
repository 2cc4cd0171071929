package notifications

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"reciapp/internal/models"
	"reciapp/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.Send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_BroadcastFansOutToAllUserSessions(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register(7, models.RoleRequester, nil)
	require.NoError(t, err)
	b, err := hub.Register(7, models.RoleRequester, nil)
	require.NoError(t, err)
	other, err := hub.Register(8, models.RoleRequester, nil)
	require.NoError(t, err)

	hub.Broadcast(7, []byte("hello"))

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(other))
}

func TestHub_BroadcastCollectorsSkipsRequesters(t *testing.T) {
	hub := NewHub()

	collector, err := hub.Register(1, models.RoleCollector, nil)
	require.NoError(t, err)
	requester, err := hub.Register(2, models.RoleRequester, nil)
	require.NoError(t, err)

	hub.BroadcastCollectors([]byte("new work"))

	assert.Len(t, drain(collector), 1)
	assert.Empty(t, drain(requester))
}

func TestHub_BroadcastCollectorsExceptSkipsWinner(t *testing.T) {
	hub := NewHub()

	winner, err := hub.Register(1, models.RoleCollector, nil)
	require.NoError(t, err)
	loser, err := hub.Register(2, models.RoleCollector, nil)
	require.NoError(t, err)

	hub.BroadcastCollectorsExcept(1, []byte("withdrawn"))

	assert.Empty(t, drain(winner))
	assert.Len(t, drain(loser), 1)
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()

	c, err := hub.Register(3, models.RoleCollector, nil)
	require.NoError(t, err)
	assert.True(t, hub.IsOnline(3))

	hub.UnregisterClient(c)
	assert.False(t, hub.IsOnline(3))

	hub.BroadcastCollectors([]byte("late"))
	assert.Empty(t, drain(c))
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(9, models.RoleCollector, nil)
		require.NoError(t, err)
	}

	_, err := hub.Register(9, models.RoleCollector, nil)
	assert.Error(t, err)
}

func TestClient_TrySendDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(4, models.RoleCollector, nil)
	require.NoError(t, err)

	for i := 0; i < cap(c.Send); i++ {
		c.Send <- []byte("fill")
	}

	// Over-full channel drops the message but must not block or panic.
	c.TrySend([]byte("overflow"))
	assert.Len(t, c.Send, cap(c.Send))

	for _, m := range drain(c) {
		assert.NotEqual(t, "overflow", string(m))
	}
}

func TestClient_TrySendOnClosedChannelDoesNotPanic(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(6, models.RoleCollector, nil)
	require.NoError(t, err)

	close(c.Send)
	assert.NotPanics(t, func() { c.TrySend([]byte("late")) })
}

func TestHub_ShutdownClearsRegistry(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register(5, models.RoleRequester, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.False(t, hub.IsOnline(5))
}

func TestHub_ShutdownIsIdempotent(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register(5, models.RoleRequester, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.NotPanics(t, func() {
		assert.NoError(t, hub.Shutdown(context.Background()))
	})
}

func TestHub_SessionLifecycleIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := observability.GlobalLogger
	observability.GlobalLogger = &observability.Logger{
		Logger: slog.New(slog.NewJSONHandler(&buf, nil)),
	}
	t.Cleanup(func() { observability.GlobalLogger = prev })

	hub := NewHub()
	c, err := hub.Register(11, models.RoleCollector, nil)
	require.NoError(t, err)
	hub.UnregisterClient(c)

	logged := buf.String()
	assert.Contains(t, logged, "session registered")
	assert.Contains(t, logged, "session deregistered")
	assert.Contains(t, logged, hub.Name())
	assert.Contains(t, logged, `"user_id":11`)
	assert.Contains(t, logged, `"role":"collector"`)
}
