// Package notifications provides the dispatch channel: the session
// registry, event fan-out and the Redis bridge between server instances.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"reciapp/internal/models"
	"reciapp/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// Hub is the session registry: it maps userID -> set of live dispatch
// sessions. A user may hold several sessions (multi-device); pushes fan
// out to all of them.
type Hub struct {
	mu         sync.RWMutex
	conns      map[uint]map[*Client]struct{}
	totalConns int
	wsLog      *observability.WSLogger
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "dispatch hub" }

// NewHub creates a new Hub instance for managing dispatch sessions.
func NewHub() *Hub {
	h := &Hub{
		conns: make(map[uint]map[*Client]struct{}),
	}
	h.wsLog = observability.NewWSLogger(h.Name())
	return h
}

// Register a connection for a given user and role. Returns the Client or
// an error if limits are exceeded.
func (h *Hub) Register(userID uint, role models.Role, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}

	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID, role)
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	h.wsLog.LogConnect(context.Background(), userID, string(role))

	return client, nil
}

// UnregisterClient removes a session from the registry.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.WebSocketConnectionsTotal.Dec()
		h.wsLog.LogDisconnect(context.Background(), client.UserID, "connection closed")
	}
}

// Broadcast sends message to all sessions of userID.
func (h *Hub) Broadcast(userID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.conns[userID]; ok {
		for c := range clients {
			c.TrySend(message)
		}
	}
}

// BroadcastCollectors sends message to every connected collector session.
func (h *Hub) BroadcastCollectors(message []byte) {
	h.BroadcastCollectorsExcept(0, message)
}

// BroadcastCollectorsExcept sends message to every connected collector
// session except those belonging to excludeUserID. Zero excludes nobody.
func (h *Hub) BroadcastCollectorsExcept(excludeUserID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for userID, clients := range h.conns {
		if excludeUserID != 0 && userID == excludeUserID {
			continue
		}
		for c := range clients {
			if c.Role != models.RoleCollector {
				continue
			}
			c.TrySend(message)
		}
	}
}

// IsOnline reports whether a user currently has at least one live session.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.conns[userID]
	return ok && len(clients) > 0
}

// StartWiring connects the Notifier to this hub: it subscribes to the
// dispatch Redis patterns and forwards envelopes published by other server
// instances to matching local sessions. Envelopes originating from this
// process are skipped; the Dispatcher already delivered them locally.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, func(channel, payload string) {
		env, err := decodeEnvelope(payload)
		if err != nil {
			h.wsLog.LogError(ctx, 0, fmt.Errorf("invalid envelope on %s: %w", channel, err), "wiring")
			return
		}
		if env.Origin == n.Origin() {
			return
		}

		if channel == collectorsChannel {
			h.BroadcastCollectorsExcept(env.Exclude, env.Event)
			return
		}
		if !strings.HasPrefix(channel, userChannelPrefix) {
			h.wsLog.LogError(ctx, 0, fmt.Errorf("invalid channel %s", channel), "wiring")
			return
		}
		// channel form: dispatch:user:<id>
		var userID uint
		_, err = fmt.Sscanf(channel, userChannelPrefix+"%d", &userID)
		if err != nil {
			h.wsLog.LogError(ctx, 0, fmt.Errorf("invalid channel %s", channel), "wiring")
			return
		}
		h.Broadcast(userID, env.Event)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for userID, userConns := range h.conns {
		for client := range userConns {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				h.wsLog.LogError(ctx, userID, err, "close")
			}
			if err := client.Conn.Close(); err != nil {
				h.wsLog.LogError(ctx, userID, err, "close")
			}
		}
	}
	h.conns = make(map[uint]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	return nil
}
