package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"reciapp/internal/models"
	"reciapp/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const wsTicketTTL = 30 * time.Second

// IssueWSTicket mints a short-lived single-use ticket the client presents
// when opening the dispatch socket. Browsers cannot set headers on
// websocket upgrades, so the bearer JWT is exchanged for the ticket here.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("ticket store unavailable")))
	}

	userID, role := identity(c)
	ticket := uuid.NewString()
	key := fmt.Sprintf("ws_ticket:%s", ticket)
	value := fmt.Sprintf("%d:%s", userID, role)

	if err := s.redis.Set(c.Context(), key, value, wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// incomingTick is the only message collectors send over the socket: a
// position update for their claimed request.
type incomingTick struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// WebsocketHandler handles the dispatch channel connection. Each session
// registers under the authenticated identity, receives a snapshot event
// immediately, then consumes pushed lifecycle/location events.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ctx := context.Background()

		userIDVal := conn.Locals("userID")
		roleVal := conn.Locals("role")
		if userIDVal == nil || roleVal == nil {
			log.Printf("WebSocket: Unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := userIDVal.(uint)
		role := roleVal.(models.Role)

		log.Printf("WebSocket: User %d (%s) connected to dispatch", userID, role)

		client, err := s.hub.Register(userID, role, conn)
		if err != nil {
			log.Printf("WebSocket: Failed to register user %d: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var tick incomingTick
			if err := json.Unmarshal(message, &tick); err != nil {
				log.Printf("WebSocket: Invalid message format from user %d", userID)
				return
			}
			if tick.Type != "location" {
				return
			}
			if role != models.RoleCollector {
				return
			}

			if err := s.relay.Forward(ctx, userID, models.LocationUpdate{
				RequestID:   tick.RequestID,
				CollectorID: userID,
				Lat:         tick.Lat,
				Lng:         tick.Lng,
				Timestamp:   time.Now(),
			}); err != nil {
				log.Printf("WebSocket: location relay error for user %d: %v", userID, err)
			}
		}

		// Push the authoritative snapshot so the session resynchronizes
		// without a separate fetch.
		s.pushSnapshot(ctx, client, userID, role)

		// Start write pump in a goroutine
		go client.WritePump()

		// Read pump runs in the main handler goroutine (blocking)
		client.ReadPump()
	})
}

func (s *Server) pushSnapshot(ctx context.Context, client *notifications.Client, userID uint, role models.Role) {
	var payload interface{}
	var err error
	switch role {
	case models.RoleCollector:
		payload, err = s.lifecycle.SnapshotForCollector(ctx, userID, nil)
	case models.RoleRequester:
		payload, err = s.lifecycle.SnapshotForRequester(ctx, userID)
	default:
		return
	}
	if err != nil {
		log.Printf("WebSocket: snapshot for user %d failed: %v", userID, err)
		return
	}

	if data, err := notifications.NewSnapshotEvent(payload).Encode(); err == nil {
		client.TrySend(data)
	}
}
